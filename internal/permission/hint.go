package permission

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/patrickmn/go-cache"
)

const (
	// HintKey is the single client-local key owned by the notification core.
	HintKey = "notification_permission_safari"
	// HintGranted is the only value ever written under HintKey.
	HintGranted = "granted"
)

// HintStore persists small client-local string values.
type HintStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// MemoryHintStore keeps hints for the lifetime of the process.
type MemoryHintStore struct {
	c *cache.Cache
}

// NewMemoryHintStore creates an empty in-memory hint store.
func NewMemoryHintStore() *MemoryHintStore {
	return &MemoryHintStore{c: cache.New(cache.NoExpiration, 0)}
}

// Get returns the stored value for key.
func (s *MemoryHintStore) Get(key string) (string, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Set stores value under key.
func (s *MemoryHintStore) Set(key, value string) error {
	s.c.Set(key, value, cache.NoExpiration)
	return nil
}

// FileHintStore is a MemoryHintStore that survives restarts by writing
// itself to disk after every Set.
type FileHintStore struct {
	MemoryHintStore
	path string
	mu   sync.Mutex
}

// NewFileHintStore loads hints from path if the file exists.
func NewFileHintStore(path string) (*FileHintStore, error) {
	s := &FileHintStore{
		MemoryHintStore: *NewMemoryHintStore(),
		path:            path,
	}
	if err := s.c.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load hint store %s: %w", path, err)
	}
	return s, nil
}

// Set stores value and flushes the store to disk.
func (s *FileHintStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Set(key, value, cache.NoExpiration)
	if err := s.c.SaveFile(s.path); err != nil {
		return fmt.Errorf("save hint store %s: %w", s.path, err)
	}
	return nil
}
