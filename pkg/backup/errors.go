package backup

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when a backup document is not a JSON
// object of string values.
var ErrInvalidDocument = errors.New("invalid backup document")

// ValidationError describes why a document was rejected.
type ValidationError struct {
	// Key is the offending key, empty for structural problems.
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidDocument, e.Reason)
	}
	return fmt.Sprintf("%s: key %q: %s", ErrInvalidDocument, e.Key, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidDocument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDocument
}
