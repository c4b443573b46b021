// Package kvstore provides the durable string-keyed store every calmspace
// feature reads and writes through.
//
// Values are opaque strings; structured entities are JSON-encoded by the
// collection package before they get here. A Set is durable once it
// returns. There is no compare-and-swap: two read-modify-write sequences
// racing on one key resolve as last writer wins.
//
// Example usage:
//
//	st, err := kvstore.Open(kvstore.Config{
//	    Backend: kvstore.BackendBolt,
//	    DBPath:  "~/.config/calmspace/state.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	if err := st.Set("theme", "dark"); err != nil {
//	    log.Fatal(err)
//	}
package kvstore

import "time"

// Backend names accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store is an origin-wide key-value store.
type Store interface {
	// Get returns the value stored under key.
	//
	// Returns ErrKeyNotFound if the key is absent.
	Get(key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Clear deletes every key.
	Clear() error

	// Keys returns all keys in ascending order.
	Keys() ([]string, error)

	// Snapshot returns a point-in-time copy of every key and value,
	// read within a single transaction.
	Snapshot() (map[string]string, error)

	// SetMany writes all entries in one transaction. Either every entry
	// is stored or none is.
	SetMany(entries map[string]string) error

	// Close releases the underlying database.
	Close() error
}

// Config contains store configuration.
type Config struct {
	// Backend selects the implementation (bolt, sqlite, memory).
	// Default: bolt.
	Backend string

	// DBPath is the database file path. Ignored by the memory backend.
	DBPath string

	// Timeout bounds how long opening waits for the file lock held by
	// another process. Default: 1 second.
	Timeout time.Duration
}
