// Package config provides configuration management for calmspace.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("State database: %s\n", cfg.Storage.DBPath)
package config

import (
	"fmt"
	"time"

	// Zone names resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Storage.Backend is bolt, sqlite or memory
// - Storage.Timezone is a loadable IANA zone
// - Cache.InstallConcurrency must be > 0
// - Session durations and fade settings must be > 0
// - Session.MaxVolume must be in (0, 1].
type Config struct {
	// State store settings
	Storage StorageConfig `yaml:"storage"`

	// Offline asset cache settings
	Cache CacheConfig `yaml:"cache"`

	// HTTP server settings
	Server ServerConfig `yaml:"server"`

	// Session timer settings
	Session SessionConfig `yaml:"session"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig contains state store settings.
type StorageConfig struct {
	// Store backend (bolt, sqlite, memory)
	Backend string `yaml:"backend"`

	// Path to the database file
	DBPath string `yaml:"db_path"`

	// How long to wait for the database file lock
	Timeout time.Duration `yaml:"timeout"`

	// IANA time zone used to derive day keys
	Timezone string `yaml:"timezone"`
}

// CacheConfig contains offline asset cache settings.
type CacheConfig struct {
	// Path to the cache BoltDB file
	DBPath string `yaml:"db_path"`

	// Path to the asset manifest (YAML)
	Manifest string `yaml:"manifest"`

	// Where assets are fetched from: an http(s) URL or a local directory
	Origin string `yaml:"origin"`

	// URL path prefix controlled by the cache
	Scope string `yaml:"scope"`

	// Glob patterns of request paths never served from the cache
	Bypass []string `yaml:"bypass"`

	// Timeout of each network fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Parallel fetches during install
	InstallConcurrency int `yaml:"install_concurrency"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen address
	Addr string `yaml:"addr"`

	// Reinstall the cache when the manifest file changes
	WatchManifest bool `yaml:"watch_manifest"`

	// Manifest change debounce window
	Debounce time.Duration `yaml:"debounce"`

	// Graceful shutdown limit
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig contains session timer settings.
type SessionConfig struct {
	// Length of one breathing phase
	PhaseInterval time.Duration `yaml:"phase_interval"`

	// Length of a breathing session
	BreathingDuration time.Duration `yaml:"breathing_duration"`

	// Countdown length for meditation, focus and sleep
	DefaultDuration time.Duration `yaml:"default_duration"`

	// Volume ramp resolution
	FadeInterval time.Duration `yaml:"fade_interval"`

	// Volume change per ramp step
	FadeStep float64 `yaml:"fade_step"`

	// Fade-in target volume
	MaxVolume float64 `yaml:"max_volume"`

	// Streak lengths that trigger a milestone notice
	Milestones []int `yaml:"milestones"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Location returns the time zone of Storage.Timezone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Storage.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Storage.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimezone, err)
	}
	return loc, nil
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - Unknown storage backend or empty database path
//   - Unknown time zone
//   - Invalid install concurrency (must be > 0)
//   - Invalid session durations or fade settings
//   - Invalid log level or format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	// Validate storage config
	validBackends := map[string]bool{
		"bolt":   true,
		"sqlite": true,
		"memory": true,
	}
	if !validBackends[c.Storage.Backend] {
		return ErrInvalidBackend
	}
	if c.Storage.Backend != "memory" && c.Storage.DBPath == "" {
		return ErrEmptyDBPath
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	// Validate cache config
	if c.Cache.InstallConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Cache.FetchTimeout < 0 {
		return ErrInvalidFetchTimeout
	}

	// Validate session config
	if c.Session.PhaseInterval <= 0 || c.Session.BreathingDuration <= 0 ||
		c.Session.DefaultDuration <= 0 || c.Session.FadeInterval <= 0 {
		return ErrInvalidSessionDuration
	}
	if c.Session.FadeStep <= 0 || c.Session.MaxVolume <= 0 || c.Session.MaxVolume > 1 {
		return ErrInvalidFade
	}
	for _, m := range c.Session.Milestones {
		if m <= 0 {
			return ErrInvalidMilestone
		}
	}

	// Validate logging config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:  "bolt",
			DBPath:   defaultDBPath(),
			Timeout:  1 * time.Second,
			Timezone: "UTC",
		},
		Cache: CacheConfig{
			DBPath:             defaultCacheDBPath(),
			Manifest:           "./manifest.yaml",
			Origin:             "./web",
			Scope:              "/",
			Bypass:             []string{"/api/**"},
			FetchTimeout:       10 * time.Second,
			InstallConcurrency: 4,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			Debounce:        200 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			PhaseInterval:     4 * time.Second,
			BreathingDuration: 2 * time.Minute,
			DefaultDuration:   5 * time.Minute,
			FadeInterval:      50 * time.Millisecond,
			FadeStep:          0.02,
			MaxVolume:         0.5,
			Milestones:        []int{7, 30},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
