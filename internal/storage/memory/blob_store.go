// Package memory stores blob content in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BlobStore keeps artifacts in a map guarded by a mutex.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Put stores a copy of data under path.
func (s *BlobStore) Put(_ context.Context, path string, _ string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored object.
func (s *BlobStore) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found", path)
	}
	return append([]byte(nil), data...), nil
}

// List returns object names under prefix in lexical order.
func (s *BlobStore) List(_ context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.data {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeletePrefix removes every object under prefix.
func (s *BlobStore) DeletePrefix(_ context.Context, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.data {
		if strings.HasPrefix(name, prefix) {
			delete(s.data, name)
		}
	}
	return nil
}

// Len reports how many objects are stored (test helper).
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
