package offline

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/0xmhha/calmspace/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storages() map[string]func(t *testing.T) CacheStorage {
	return map[string]func(t *testing.T) CacheStorage{
		"bolt": func(t *testing.T) CacheStorage {
			s, err := NewBoltStorage(StorageConfig{DBPath: filepath.Join(t.TempDir(), "cache.db")}, logger.Noop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"memory": func(*testing.T) CacheStorage {
			return NewMemoryStorage()
		},
	}
}

func TestCacheStorage(t *testing.T) {
	for name, open := range storages() {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			names, err := s.Names()
			require.NoError(t, err)
			assert.Empty(t, names)

			_, err = s.Match("v1", "/")
			assert.ErrorIs(t, err, ErrNotCached)

			entries := map[string]*Response{
				"/":       {URL: "/", Status: http.StatusOK, Body: []byte("root")},
				"/app.js": {URL: "/app.js", Status: http.StatusOK, Header: http.Header{"Content-Type": {"text/javascript"}}, Body: []byte("js")},
			}
			require.NoError(t, s.PutAll("v1", entries))
			require.NoError(t, s.PutAll("v2", map[string]*Response{"/": {URL: "/", Status: http.StatusOK}}))

			names, err = s.Names()
			require.NoError(t, err)
			assert.Equal(t, []string{"v1", "v2"}, names)

			has, err := s.Has("v1")
			require.NoError(t, err)
			assert.True(t, has)

			resp, err := s.Match("v1", "/app.js")
			require.NoError(t, err)
			assert.Equal(t, "js", string(resp.Body))
			assert.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))

			_, err = s.Match("v1", "/missing")
			assert.ErrorIs(t, err, ErrNotCached)

			keys, err := s.Entries("v1")
			require.NoError(t, err)
			assert.Equal(t, []string{"/", "/app.js"}, keys)

			existed, err := s.Delete("v1")
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = s.Delete("v1")
			require.NoError(t, err)
			assert.False(t, existed)

			_, err = s.Entries("v1")
			assert.ErrorIs(t, err, ErrNotCached)
		})
	}
}

func TestBoltStorage_Durable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	s, err := NewBoltStorage(StorageConfig{DBPath: path}, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, s.PutAll("v1", map[string]*Response{"/": {URL: "/", Status: http.StatusOK, Body: []byte("root")}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	_, err = s.Names()
	assert.ErrorIs(t, err, ErrStorageClosed)

	reopened, err := NewBoltStorage(StorageConfig{DBPath: path}, logger.Noop())
	require.NoError(t, err)
	defer reopened.Close()

	resp, err := reopened.Match("v1", "/")
	require.NoError(t, err)
	assert.Equal(t, "root", string(resp.Body))
}

func TestMemoryStorage_CopiesResponses(t *testing.T) {
	s := NewMemoryStorage()
	original := &Response{URL: "/", Status: http.StatusOK, Body: []byte("root")}
	require.NoError(t, s.PutAll("v1", map[string]*Response{"/": original}))

	original.Body[0] = 'X'

	resp, err := s.Match("v1", "/")
	require.NoError(t, err)
	assert.Equal(t, "root", string(resp.Body))
}
