package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

// MemoryStore is an in-memory vector record store. It supports concurrent
// readers; writes take an exclusive lock so a reader never observes a
// partially inserted chunk. The embedding dimension is established by the
// first insert and enforced on every later one.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []Chunk // insertion order, which also breaks score ties
	dim    int
}

// NewMemoryStore creates an empty store. The dimension is fixed by the first Add.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add inserts a chunk. It fails with domain.ErrDimensionMismatch when the
// embedding length disagrees with the store's dimension, leaving the store
// unchanged.
func (s *MemoryStore) Add(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(c)
}

// AddBatch inserts chunks atomically: every embedding is checked before any
// chunk is appended, so a mismatch mid-batch leaves the store unchanged.
func (s *MemoryStore) AddBatch(chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("semantic: add %s: %w: empty embedding", c.ID, domain.ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("semantic: add %s: %w: got %d, store has %d",
				c.ID, domain.ErrDimensionMismatch, len(c.Embedding), dim)
		}
	}
	for _, c := range chunks {
		if err := s.addLocked(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) addLocked(c Chunk) error {
	if len(c.Embedding) == 0 {
		return fmt.Errorf("semantic: add %s: %w: empty embedding", c.ID, domain.ErrDimensionMismatch)
	}
	if s.dim == 0 {
		s.dim = len(c.Embedding)
	}
	if len(c.Embedding) != s.dim {
		return fmt.Errorf("semantic: add %s: %w: got %d, store has %d",
			c.ID, domain.ErrDimensionMismatch, len(c.Embedding), s.dim)
	}
	c.Metadata = c.Metadata.Clone()
	s.chunks = append(s.chunks, c)
	return nil
}

// Remove deletes the chunk with the given ID, preserving the relative order
// of the remaining chunks. It reports whether a chunk was removed.
func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.chunks {
		if c.ID == id {
			s.chunks = append(s.chunks[:i], s.chunks[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the chunk with the given ID.
func (s *MemoryStore) Get(id string) (Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.ID == id {
			return c, true
		}
	}
	return Chunk{}, false
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Search returns the k best chunks under the metric, restricted to chunks
// matching the filter. Distance metrics rank ascending, similarity metrics
// descending; equal scores keep insertion order (earlier chunk ranks higher).
// It fails with domain.ErrEmptyStore when no chunk matches the filter;
// callers treat that as "no context", not a fault.
func (s *MemoryStore) Search(_ context.Context, embedding []float32, k int, metric Metric, filter Filter) ([]Scored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(embedding) != s.dim {
		return nil, fmt.Errorf("semantic: search: %w: query has %d, store has %d",
			domain.ErrDimensionMismatch, len(embedding), s.dim)
	}

	var scored []Scored
	for _, c := range s.chunks {
		if !filter.Matches(c.Metadata) {
			continue
		}
		scored = append(scored, Scored{Chunk: c, Score: metric.Score(embedding, c.Embedding)})
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("semantic: search: %w", domain.ErrEmptyStore)
	}

	if metric.HigherIsBetter() {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	} else {
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })
	}

	if k > 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Stats returns chunk count, embedding dimension, metadata key cardinalities,
// and the supported metrics.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[string]int)
	for _, c := range s.chunks {
		for k := range c.Metadata {
			keys[k]++
		}
	}
	return Stats{
		Chunks:       len(s.chunks),
		Dimension:    s.dim,
		MetadataKeys: keys,
		Metrics:      MetricNames(),
	}
}

type memorySnapshot struct {
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"chunks"`
}

// Save writes the store contents as JSON.
func (s *MemoryStore) Save(w io.Writer) error {
	s.mu.RLock()
	snap := memorySnapshot{Dimension: s.dim, Chunks: s.chunks}
	s.mu.RUnlock()

	enc := json.NewEncoder(w)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("semantic: save: %w", err)
	}
	return nil
}

// Load replaces the store contents from JSON previously written by Save.
func (s *MemoryStore) Load(r io.Reader) error {
	var snap memorySnapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("semantic: load: %w", err)
	}
	for _, c := range snap.Chunks {
		if len(c.Embedding) != snap.Dimension {
			return fmt.Errorf("semantic: load %s: %w: got %d, snapshot has %d",
				c.ID, domain.ErrDimensionMismatch, len(c.Embedding), snap.Dimension)
		}
	}

	s.mu.Lock()
	s.dim = snap.Dimension
	s.chunks = snap.Chunks
	s.mu.Unlock()
	return nil
}
