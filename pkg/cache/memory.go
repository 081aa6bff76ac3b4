package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps generations in process memory. It is the default
// backend and the one used by tests.
type MemoryStorage struct {
	mu          sync.RWMutex
	generations map[string]map[string]*CacheEntry
	closed      bool
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		generations: make(map[string]map[string]*CacheEntry),
	}
}

func (m *MemoryStorage) Open(_ context.Context, generation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	if _, ok := m.generations[generation]; !ok {
		m.generations[generation] = make(map[string]*CacheEntry)
	}
	return nil
}

func (m *MemoryStorage) Put(_ context.Context, generation string, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	gen, ok := m.generations[generation]
	if !ok {
		gen = make(map[string]*CacheEntry)
		m.generations[generation] = gen
	}
	gen[key.String()] = entry.Clone()
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, generation string, key CacheKey) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	ent, ok := m.generations[generation][key.String()]
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("memory").Inc()
	return ent.Clone(), nil
}

func (m *MemoryStorage) Generations(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	out := make([]string, 0, len(m.generations))
	for name := range m.generations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStorage) DeleteGeneration(_ context.Context, generation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrStorageClosed
	}
	_, ok := m.generations[generation]
	delete(m.generations, generation)
	return ok, nil
}

// Len returns the number of entries held by a generation.
func (m *MemoryStorage) Len(generation string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.generations[generation])
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.generations = nil
	return nil
}
