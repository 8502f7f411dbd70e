package blob

import (
	"context"
	"fmt"
	"sync"

	"labflow/internal/util"
)

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *MemoryStore) Download(_ context.Context, locator string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", util.ErrDownloadFailed, locator)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Upload(_ context.Context, locator string, data []byte, opts UploadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[locator]; ok && !opts.Upsert {
		return fmt.Errorf("upload %s: %w", locator, ErrAlreadyExists)
	}
	m.objects[locator] = append([]byte(nil), data...)
	m.types[locator] = opts.ContentType
	return nil
}

func (m *MemoryStore) ContentType(locator string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[locator]
}
