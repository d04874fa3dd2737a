package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process vector index partitioned by namespace. It
// backs tests and offline runs; a single index can serve multiple namespaced
// Store views.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Entry
	dimension  int
}

// NewMemoryIndex creates an empty in-memory index with a fixed dimensionality
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		namespaces: make(map[string]map[string]Entry),
		dimension:  dimension,
	}
}

// Namespace returns a Store view over one logical partition
func (m *MemoryIndex) Namespace(name string) Store {
	return &memoryStore{index: m, namespace: name, logger: slog.Default().With("component", "memory-vectorstore")}
}

type memoryStore struct {
	index     *MemoryIndex
	namespace string
	logger    *slog.Logger
}

func (s *memoryStore) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != s.index.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Vector), s.index.dimension)
	}

	entry.Metadata = truncateMetadata(entry.ID, entry.Metadata, s.logger)

	// Copy the vector so caller mutations cannot corrupt the index
	vec := make([]float32, len(entry.Vector))
	copy(vec, entry.Vector)
	entry.Vector = vec

	s.index.mu.Lock()
	defer s.index.mu.Unlock()

	ns, ok := s.index.namespaces[s.namespace]
	if !ok {
		ns = make(map[string]Entry)
		s.index.namespaces[s.namespace] = ns
	}
	ns[entry.ID] = entry
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.index.mu.Lock()
	defer s.index.mu.Unlock()

	if ns, ok := s.index.namespaces[s.namespace]; ok {
		delete(ns, id)
	}
	return nil
}

func (s *memoryStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]QueryHit, error) {
	if len(vector) != s.index.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.index.dimension)
	}
	if topK <= 0 {
		return []QueryHit{}, nil
	}

	s.index.mu.RLock()
	defer s.index.mu.RUnlock()

	hits := make([]QueryHit, 0)
	for _, entry := range s.index.namespaces[s.namespace] {
		if !filter.matches(entry.Metadata) {
			continue
		}
		hits = append(hits, QueryHit{
			ID:       entry.ID,
			Score:    cosineSimilarity(vector, entry.Vector),
			Metadata: entry.Metadata,
		})
	}

	// Descending score, ties broken by ascending id for determinism
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *memoryStore) Dimension() int {
	return s.index.dimension
}

func (s *memoryStore) Close() error {
	return nil
}

// cosineSimilarity computes the cosine similarity between two equal-length
// vectors. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
