package kvstore

import "errors"

// Common errors returned by stores.
var (
	// ErrKeyNotFound is returned by Get when the key is absent.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrEmptyKey is returned when a key is the empty string.
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrUnknownBackend is returned by Open for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown store backend")
)
