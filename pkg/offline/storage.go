package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/calmspace/pkg/logger"
	bolt "go.etcd.io/bbolt"
)

// CacheStorage holds named caches of responses keyed by request URL.
type CacheStorage interface {
	// Names returns every cache name in ascending order.
	Names() ([]string, error)

	// Has reports whether a cache with name exists.
	Has(name string) (bool, error)

	// Delete removes the named cache and reports whether it existed.
	Delete(name string) (bool, error)

	// PutAll creates the cache if needed and stores every entry in one
	// transaction.
	PutAll(name string, entries map[string]*Response) error

	// Match returns the entry stored under key in the named cache, or
	// ErrNotCached.
	Match(name, key string) (*Response, error)

	// Entries returns the keys stored in the named cache.
	Entries(name string) ([]string, error)

	// Close releases the storage.
	Close() error
}

// StorageConfig contains bolt cache storage configuration.
type StorageConfig struct {
	// DBPath is the BoltDB file path.
	DBPath string

	// Timeout bounds waiting for the file lock. Default: 1 second.
	Timeout time.Duration
}

// boltStorage keeps each cache in its own top-level bucket.
type boltStorage struct {
	db     *bolt.DB
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBoltStorage opens (or creates) BoltDB-backed cache storage.
func NewBoltStorage(cfg StorageConfig, log logger.Logger) (CacheStorage, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.DBPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	log.Info("cache storage opened", "db_path", dbPath)

	return &boltStorage{db: db, logger: log}, nil
}

func (s *boltStorage) Names() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	return names, nil
}

func (s *boltStorage) Has(name string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(name)) != nil
		return nil
	})
	return found, err
}

func (s *boltStorage) Delete(name string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}

	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}
	return existed, nil
}

func (s *boltStorage) PutAll(name string, entries map[string]*Response) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("failed to create cache %s: %w", name, err)
		}

		for key, resp := range entries {
			data, marshalErr := json.Marshal(resp)
			if marshalErr != nil {
				return fmt.Errorf("failed to marshal %s: %w", key, marshalErr)
			}
			if putErr := b.Put([]byte(key), data); putErr != nil {
				return fmt.Errorf("failed to store %s: %w", key, putErr)
			}
		}
		return nil
	})
}

func (s *boltStorage) Match(name, key string) (*Response, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var resp *Response
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return ErrNotCached
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotCached
		}

		var r Response
		if unmarshalErr := json.Unmarshal(data, &r); unmarshalErr != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", key, unmarshalErr)
		}
		resp = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *boltStorage) Entries(name string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return ErrNotCached
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *boltStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	s.logger.Info("cache storage closed")
	return nil
}

func (s *boltStorage) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// memoryStorage implements CacheStorage in memory. Useful for testing.
type memoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Response
}

// NewMemoryStorage creates empty in-memory cache storage.
func NewMemoryStorage() CacheStorage {
	return &memoryStorage{caches: make(map[string]map[string]*Response)}
}

func (s *memoryStorage) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStorage) Has(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.caches[name]
	return ok, nil
}

func (s *memoryStorage) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

func (s *memoryStorage) PutAll(name string, entries map[string]*Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = make(map[string]*Response, len(entries))
		s.caches[name] = c
	}
	for key, resp := range entries {
		c[key] = cloneResponse(resp)
	}
	return nil
}

func (s *memoryStorage) Match(name, key string) (*Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp, ok := s.caches[name][key]
	if !ok {
		return nil, ErrNotCached
	}
	return cloneResponse(resp), nil
}

func (s *memoryStorage) Entries(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.caches[name]
	if !ok {
		return nil, ErrNotCached
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStorage) Close() error {
	return nil
}

func cloneResponse(r *Response) *Response {
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
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
