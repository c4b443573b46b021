package config

import (
	"os"
	"path/filepath"
)

// configDir returns ~/.config/calmspace, or "." without a home directory.
func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(homeDir, ".config", "calmspace")
}

// defaultDBPath returns the default state database path.
//
// Returns: ~/.config/calmspace/state.db.
func defaultDBPath() string {
	return filepath.Join(configDir(), "state.db")
}

// defaultCacheDBPath returns the default offline cache database path.
//
// Returns: ~/.config/calmspace/cache.db.
func defaultCacheDBPath() string {
	return filepath.Join(configDir(), "cache.db")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/calmspace/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
