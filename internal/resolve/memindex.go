package resolve

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-process Index partitioned by tenant. It backs local
// development and tests; PGIndex is the production implementation.
type MemoryIndex struct {
	mu      sync.RWMutex
	tenants map[string]map[string]memItem
}

type memItem struct {
	hit       Hit
	embedding []float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{tenants: make(map[string]map[string]memItem)}
}

// Put stores or replaces an item in its tenant partition. embedding may be nil.
func (m *MemoryIndex) Put(h Hit, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	part, ok := m.tenants[h.TenantID]
	if !ok {
		part = make(map[string]memItem)
		m.tenants[h.TenantID] = part
	}
	part[h.ID] = memItem{hit: h, embedding: embedding}
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, it := range m.tenants[q.TenantID] {
		if q.Type != "" && it.hit.Type != q.Type {
			continue
		}
		var sim float64
		if q.Embedding != nil && it.embedding != nil {
			sim = dot(q.Embedding, it.embedding)
		} else {
			sim = lexicalSimilarity(q.Phrase, it.hit.Title)
			if it.hit.Key != "" && strings.EqualFold(q.Phrase, it.hit.Key) {
				sim = 1
			}
		}
		if sim <= 0 {
			continue
		}
		h := it.hit
		h.Similarity = sim
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (m *MemoryIndex) Get(ctx context.Context, tenantID string, ids []string) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.tenants[tenantID]
	var hits []Hit
	for _, id := range ids {
		if it, ok := part[id]; ok {
			hits = append(hits, it.hit)
		}
	}
	return hits, nil
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// lexicalSimilarity is the Jaccard overlap of lower-cased word sets.
func lexicalSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(wa)+len(wb)-inter)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	}) {
		out[w] = struct{}{}
	}
	return out
}

// compile-time checks
var (
	_ Index = (*MemoryIndex)(nil)
	_ Index = (*PGIndex)(nil)
)

