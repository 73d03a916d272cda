package searchindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/mycelian/mycelian-persona/internal/model"
)

// MemoryIndex is an in-process brute-force cosine index. It backs local
// runs without Weaviate and package tests.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks map[string]model.IndexedChunk
	order  []string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string]model.IndexedChunk)}
}

func (m *MemoryIndex) Upsert(_ context.Context, chunks []model.IndexedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if _, ok := m.chunks[c.ChunkKey]; !ok {
			m.order = append(m.order, c.ChunkKey)
		}
		c.Vector = append([]float32(nil), c.Vector...)
		m.chunks[c.ChunkKey] = c
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vec []float32, topK int) ([]model.RetrievedMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.chunks) == 0 || topK <= 0 {
		return nil, nil
	}
	type scored struct {
		c     model.IndexedChunk
		score float64
	}
	all := make([]scored, 0, len(m.chunks))
	for _, key := range m.order {
		c := m.chunks[key]
		all = append(all, scored{c: c, score: cosine(vec, c.Vector)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > topK {
		all = all[:topK]
	}
	out := make([]model.RetrievedMatch, 0, len(all))
	for _, s := range all {
		out = append(out, model.RetrievedMatch{
			Table:    s.c.Table,
			SourceID: s.c.SourceID,
			AuthorID: s.c.AuthorID,
			Text:     s.c.Text,
			Score:    s.score,
		})
	}
	return out, nil
}

// Len returns the number of stored chunks.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Keys returns stored chunk keys in first-insert order.
func (m *MemoryIndex) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
