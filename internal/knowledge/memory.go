package knowledge

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps all record versions in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string][]Record
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]map[string][]Record)}
}

// Append implements Repository.
func (m *MemoryRepository) Append(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.records[rec.SessionID]
	if !ok {
		ns = make(map[string][]Record)
		m.records[rec.SessionID] = ns
	}
	rec.Version = len(ns[rec.Key]) + 1
	ns[rec.Key] = append(ns[rec.Key], rec)
	return rec, nil
}

// Latest implements Repository.
func (m *MemoryRepository) Latest(_ context.Context, namespace, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.records[namespace][key]
	if len(versions) == 0 {
		return Record{}, ErrNotFound
	}
	return versions[len(versions)-1], nil
}

// History implements Repository.
func (m *MemoryRepository) History(_ context.Context, namespace, key string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.records[namespace][key]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return append([]Record(nil), versions...), nil
}

// List implements Repository.
func (m *MemoryRepository) List(_ context.Context, namespace string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records[namespace]))
	for _, versions := range m.records[namespace] {
		out = append(out, versions[len(versions)-1])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements Repository.
func (m *MemoryRepository) Close() error { return nil }
