package directory

import (
	"context"
	"sync"
)

// Memory is an in-memory directory keyed by normalized DN
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	lookups int
}

// NewMemory creates a directory holding the given entries
func NewMemory(entries ...*Entry) *Memory {
	m := &Memory{entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		m.Add(e)
	}
	return m
}

// Add inserts or replaces an entry
func (m *Memory) Add(e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[NormalizeDN(e.DN)] = &Entry{
		DN:         e.DN,
		Attributes: normalizeAttributes(e.Attributes),
	}
}

// Lookup implements Directory
func (m *Memory) Lookup(ctx context.Context, dn string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++

	e, ok := m.entries[NormalizeDN(dn)]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Lookups returns how many lookups reached this directory
func (m *Memory) Lookups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookups
}

// Len returns the number of entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Directory
func (m *Memory) Close() error {
	return nil
}
