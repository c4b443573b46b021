package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xmhha/calmspace/pkg/logger"
)

// Open creates the store selected by cfg.Backend.
func Open(cfg Config, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendBolt:
		return NewBolt(cfg, log)
	case BackendSQLite:
		return NewSQLite(cfg, log)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

// prepareFile applies defaults to cfg and creates the database directory.
func prepareFile(cfg *Config) (string, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := ExpandHome(cfg.DBPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	return dbPath, nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
