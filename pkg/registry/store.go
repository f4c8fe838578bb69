package registry

import (
	"context"
	"sync"
)

// Store persists registry membership so that a restarted process can tell
// which shared objects it created before.
type Store interface {
	Load(ctx context.Context) (map[Kind]map[string][]string, error)
	Add(ctx context.Context, kind Kind, key, holder string) error
	Remove(ctx context.Context, kind Kind, key, holder string) error
	Close() error
}

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	mu   sync.Mutex
	data map[Kind]map[string]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Kind]map[string]map[string]struct{})}
}

func (m *MemoryStore) Load(ctx context.Context) (map[Kind]map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Kind]map[string][]string, len(m.data))
	for kind, keys := range m.data {
		out[kind] = make(map[string][]string, len(keys))
		for key, holders := range keys {
			for h := range holders {
				out[kind][key] = append(out[kind][key], h)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) Add(ctx context.Context, kind Kind, key, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[kind] == nil {
		m.data[kind] = make(map[string]map[string]struct{})
	}
	if m.data[kind][key] == nil {
		m.data[kind][key] = make(map[string]struct{})
	}
	m.data[kind][key][holder] = struct{}{}
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, kind Kind, key, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set := m.data[kind][key]; set != nil {
		delete(set, holder)
		if len(set) == 0 {
			delete(m.data[kind], key)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
