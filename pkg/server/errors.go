package server

import "errors"

var (
	// ErrNilDependency is returned by New when a required component is nil.
	ErrNilDependency = errors.New("server dependency is nil")

	// ErrBadRequest marks a request body that could not be decoded.
	ErrBadRequest = errors.New("bad request")
)
