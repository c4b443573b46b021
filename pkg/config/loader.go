package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding file and default values.
const (
	EnvConfig   = "CALMSPACE_CONFIG"
	EnvDB       = "CALMSPACE_DB"
	EnvCacheDB  = "CALMSPACE_CACHE_DB"
	EnvManifest = "CALMSPACE_MANIFEST"
	EnvOrigin   = "CALMSPACE_ORIGIN"
	EnvLogLevel = "CALMSPACE_LOG_LEVEL"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)

	// Path returns the config file Load reads, or "" when none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, uses $CALMSPACE_CONFIG or searches for a
// config file in:
// 1. ./calmspace.yaml (current directory)
// 2. ~/.config/calmspace/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	// Start with default configuration
	cfg := Default()

	explicit := l.configPath
	if explicit == "" {
		explicit = os.Getenv(EnvConfig)
	}

	configPath := explicit
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	// Load from file if it exists
	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// If file is specified but can't be loaded, return error
			if explicit != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, just use defaults
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	// Apply environment variable overrides
	cfg = l.applyEnvVars(cfg)

	// Validate final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return l.findConfigFile()
}

// findConfigFile searches for a config file in standard locations.
//
// Searches in order:
// 1. ./calmspace.yaml
// 2. ~/.config/calmspace/config.yaml
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./calmspace.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	// Merge storage config
	if override.Storage.Backend != "" {
		result.Storage.Backend = override.Storage.Backend
	}
	if override.Storage.DBPath != "" {
		result.Storage.DBPath = override.Storage.DBPath
	}
	if override.Storage.Timeout > 0 {
		result.Storage.Timeout = override.Storage.Timeout
	}
	if override.Storage.Timezone != "" {
		result.Storage.Timezone = override.Storage.Timezone
	}

	// Merge cache config
	if override.Cache.DBPath != "" {
		result.Cache.DBPath = override.Cache.DBPath
	}
	if override.Cache.Manifest != "" {
		result.Cache.Manifest = override.Cache.Manifest
	}
	if override.Cache.Origin != "" {
		result.Cache.Origin = override.Cache.Origin
	}
	if override.Cache.Scope != "" {
		result.Cache.Scope = override.Cache.Scope
	}
	if override.Cache.Bypass != nil {
		result.Cache.Bypass = override.Cache.Bypass
	}
	if override.Cache.FetchTimeout > 0 {
		result.Cache.FetchTimeout = override.Cache.FetchTimeout
	}
	if override.Cache.InstallConcurrency > 0 {
		result.Cache.InstallConcurrency = override.Cache.InstallConcurrency
	}

	// Merge server config
	if override.Server.Addr != "" {
		result.Server.Addr = override.Server.Addr
	}
	// WatchManifest is a bool, so we always take the override value
	result.Server.WatchManifest = override.Server.WatchManifest
	if override.Server.Debounce > 0 {
		result.Server.Debounce = override.Server.Debounce
	}
	if override.Server.ShutdownTimeout > 0 {
		result.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	// Merge session config
	if override.Session.PhaseInterval > 0 {
		result.Session.PhaseInterval = override.Session.PhaseInterval
	}
	if override.Session.BreathingDuration > 0 {
		result.Session.BreathingDuration = override.Session.BreathingDuration
	}
	if override.Session.DefaultDuration > 0 {
		result.Session.DefaultDuration = override.Session.DefaultDuration
	}
	if override.Session.FadeInterval > 0 {
		result.Session.FadeInterval = override.Session.FadeInterval
	}
	if override.Session.FadeStep > 0 {
		result.Session.FadeStep = override.Session.FadeStep
	}
	if override.Session.MaxVolume > 0 {
		result.Session.MaxVolume = override.Session.MaxVolume
	}
	if len(override.Session.Milestones) > 0 {
		result.Session.Milestones = override.Session.Milestones
	}

	// Merge logging config
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - CALMSPACE_DB: State database path
//   - CALMSPACE_CACHE_DB: Cache database path
//   - CALMSPACE_MANIFEST: Asset manifest path
//   - CALMSPACE_ORIGIN: Asset origin (URL or directory)
//   - CALMSPACE_LOG_LEVEL: Log level
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if dbPath := os.Getenv(EnvDB); dbPath != "" {
		result.Storage.DBPath = dbPath
	}

	if cacheDB := os.Getenv(EnvCacheDB); cacheDB != "" {
		result.Cache.DBPath = cacheDB
	}

	if manifest := os.Getenv(EnvManifest); manifest != "" {
		result.Cache.Manifest = manifest
	}

	if origin := os.Getenv(EnvOrigin); origin != "" {
		result.Cache.Origin = strings.TrimSpace(origin)
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
