package session

import "errors"

// ErrControllerClosed is returned when starting a session on a closed
// controller.
var ErrControllerClosed = errors.New("session controller is closed")
