package store

import (
	"context"
	"sync"
)

// Memory is the default controller: a process-local map guarded by a mutex.
// Values are stored as-is with no serialization, so mutations to stored
// pointers remain visible through the cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]any
}

var _ Controller = (*Memory)(nil)

// NewMemory returns an empty in-memory controller.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]any)}
}

func (m *Memory) Save(_ context.Context, key string, value any, _ []any) (any, error) {
	m.mu.Lock()
	m.entries[key] = value
	m.mu.Unlock()
	return value, nil
}

func (m *Memory) Retrieve(_ context.Context, key string, _ []any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.entries[key]; ok {
		return v, nil
	}
	return NotCached, nil
}

func (m *Memory) Delete(_ context.Context, key string, _ []any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return NotCached, nil
	}
	delete(m.entries, key)
	return v, nil
}

func (m *Memory) Empty(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]any)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Contents(_ context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	return snapshot, nil
}
