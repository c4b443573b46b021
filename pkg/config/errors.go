package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrInvalidBackend is returned when the store backend is not recognized.
	ErrInvalidBackend = errors.New("invalid storage backend: must be bolt, sqlite, or memory")

	// ErrEmptyDBPath is returned when a file backend has no database path.
	ErrEmptyDBPath = errors.New("storage db_path cannot be empty")

	// ErrInvalidTimezone is returned when the time zone cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidConcurrency is returned when install concurrency is <= 0.
	ErrInvalidConcurrency = errors.New("invalid install concurrency: must be > 0")

	// ErrInvalidFetchTimeout is returned when fetch timeout is negative.
	ErrInvalidFetchTimeout = errors.New("invalid fetch timeout: must be >= 0")

	// ErrInvalidSessionDuration is returned when a session duration is <= 0.
	ErrInvalidSessionDuration = errors.New("invalid session duration: must be > 0")

	// ErrInvalidFade is returned when fade step or max volume is out of range.
	ErrInvalidFade = errors.New("invalid fade settings: step must be > 0, max volume in (0, 1]")

	// ErrInvalidMilestone is returned when a milestone is <= 0.
	ErrInvalidMilestone = errors.New("invalid milestone: must be > 0")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
