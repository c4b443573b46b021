package kvstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/0xmhha/calmspace/pkg/logger"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// sqliteStore implements Store using SQLite.
//
// Unlike bolt, several processes may open the same file at once; writers
// wait on the busy timeout instead of failing.
type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewSQLite opens (or creates) a SQLite-backed store in WAL mode.
func NewSQLite(cfg Config, log logger.Logger) (Store, error) {
	dbPath, err := prepareFile(&cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dbPath, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.Timeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info("store opened", "backend", BackendSQLite, "db_path", dbPath)

	return &sqliteStore{db: db, logger: log}, nil
}

func (s *sqliteStore) Get(key string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}

	return value, nil
}

func (s *sqliteStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.check(); err != nil {
		return err
	}

	if err := upsert(s.db, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Remove(key string) error {
	if err := s.check(); err != nil {
		return err
	}

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Clear() error {
	if err := s.check(); err != nil {
		return err
	}

	if _, err := s.db.Exec("DELETE FROM kv"); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	s.logger.Info("store cleared")
	return nil
}

func (s *sqliteStore) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0, 16)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) Snapshot() (map[string]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	rows, err := tx.Query("SELECT key, value FROM kv")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		snapshot[k] = v
	}
	return snapshot, rows.Err()
}

func (s *sqliteStore) SetMany(entries map[string]string) error {
	for k := range entries {
		if k == "" {
			return ErrEmptyKey
		}
	}
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	for k, v := range entries {
		if err := upsert(tx, k, v); err != nil {
			_ = tx.Rollback() //nolint:errcheck // already failing
			return fmt.Errorf("set %q: %w", k, err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("store closed")
	return nil
}

func (s *sqliteStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsert(db execer, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
