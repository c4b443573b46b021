package display

import "errors"

// ErrUnknownFormat is returned for an unrecognized output format.
var ErrUnknownFormat = errors.New("unknown format: must be table, json, or simple")
