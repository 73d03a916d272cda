package profiles

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	name    string
	expires time.Time
}

// MemoryBackend keeps names in a process-local map.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryBackend) GetMany(_ context.Context, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		e, ok := m.entries[id]
		if !ok {
			continue
		}
		if !now.Before(e.expires) {
			delete(m.entries, id)
			continue
		}
		out[id] = e.name
	}
	return out, nil
}

func (m *MemoryBackend) SetMany(_ context.Context, names map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := m.now().Add(ttl)
	for id, name := range names {
		m.entries[id] = entry{name: name, expires: exp}
	}
	return nil
}
