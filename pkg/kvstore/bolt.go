package kvstore

import (
	"fmt"
	"sync"

	"github.com/0xmhha/calmspace/pkg/logger"
	bolt "go.etcd.io/bbolt"
)

var bucketStore = []byte("store") // key -> raw value

// boltStore implements Store using BoltDB.
type boltStore struct {
	db     *bolt.DB
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBolt opens (or creates) a BoltDB-backed store.
//
// Bolt holds an exclusive file lock while open, so a second process opening
// the same path waits up to cfg.Timeout and then fails.
func NewBolt(cfg Config, log logger.Logger) (Store, error) {
	dbPath, err := prepareFile(&cfg)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketStore)
		return createErr
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, fmt.Errorf("failed to create store bucket: %w", err)
	}

	log.Info("store opened", "backend", BackendBolt, "db_path", dbPath)

	return &boltStore{db: db, logger: log}, nil
}

func (s *boltStore) Get(key string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}

	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStore).Get([]byte(key))
		if data == nil {
			return ErrKeyNotFound
		}
		value = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}

	return value, nil
}

func (s *boltStore) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.check(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketStore).Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

func (s *boltStore) Remove(key string) error {
	if err := s.check(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketStore).Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
		return nil
	})
}

func (s *boltStore) Clear() error {
	if err := s.check(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketStore); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("failed to drop store bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketStore)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("store cleared")
	return nil
}

func (s *boltStore) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, 16)
	err := s.db.View(func(tx *bolt.Tx) error {
		// Bolt iterates in byte order, so keys come out sorted.
		return tx.Bucket(bucketStore).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

func (s *boltStore) Snapshot() (map[string]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	snapshot := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStore).ForEach(func(k, v []byte) error {
			snapshot[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}

	return snapshot, nil
}

func (s *boltStore) SetMany(entries map[string]string) error {
	for k := range entries {
		if k == "" {
			return ErrEmptyKey
		}
	}
	if err := s.check(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStore)
		for k, v := range entries {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return fmt.Errorf("failed to store %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
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

func (s *boltStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
