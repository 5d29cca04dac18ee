package store

import (
	"context"
	"sort"
	"sync"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps records in process memory
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]byte)}
}

// Read returns a copy of the stored bytes
func (b *MemoryBackend) Read(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.records[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Write stores a copy of data under key
func (b *MemoryBackend) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, key)
	return nil
}

// Keys lists stored keys in sorted order
func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear drops every record
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = make(map[string][]byte)
	return nil
}

// Ping always succeeds
func (b *MemoryBackend) Ping(_ context.Context) error { return nil }

// Close is a no-op
func (b *MemoryBackend) Close() error { return nil }
