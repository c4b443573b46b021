package collection

import "errors"

var (
	// ErrCorruptValue marks a stored value that does not decode. Readers
	// log it and fall back to the default instead of returning it.
	ErrCorruptValue = errors.New("corrupt stored value")

	// ErrInvalidMood is returned when a mood score is outside 1..5.
	ErrInvalidMood = errors.New("mood score must be between 1 and 5")

	// ErrUnknownSessionType is returned for an unsupported session type.
	ErrUnknownSessionType = errors.New("unknown session type")

	// ErrInvalidTheme is returned when setting a theme other than light or dark.
	ErrInvalidTheme = errors.New("theme must be light or dark")
)
