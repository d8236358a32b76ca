package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

func chunk(id string, emb []float32, meta domain.Metadata) Chunk {
	return Chunk{ID: id, Text: "text for " + id, Embedding: emb, Metadata: meta}
}

func TestAdd_EstablishesDimension(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Add(chunk("a", []float32{1, 0, 0}, nil)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if got := s.Stats().Dimension; got != 3 {
		t.Errorf("dimension = %d, want 3", got)
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Add(chunk("a", []float32{1, 0, 0}, nil)); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := s.Add(chunk("b", []float32{1, 0}, nil))
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed add mutated store: len = %d, want 1", s.Len())
	}
}

func TestAdd_EmptyEmbedding(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Add(chunk("a", nil, nil)); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for empty embedding, got %v", err)
	}
}

func TestAddBatch_Atomic(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddBatch([]Chunk{
		chunk("a", []float32{1, 0}, nil),
		chunk("b", []float32{1, 0, 0}, nil),
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("failed batch mutated store: len = %d, want 0", s.Len())
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Search(context.Background(), []float32{1, 0}, 3, Cosine, nil)
	if !errors.Is(err, domain.ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
}

func TestSearch_FilterMatchesNothing(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, domain.Metadata{"category": "food"}))

	_, err := s.Search(context.Background(), []float32{1, 0}, 3, Cosine, Filter{"category": Eq("animals")})
	if !errors.Is(err, domain.ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, nil))

	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 3, Cosine, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_RankingDirections(t *testing.T) {
	// c1 is closest to the query, c3 farthest, under every metric.
	s := NewMemoryStore()
	mustAdd(t, s, chunk("c3", []float32{0, 1}, nil))
	mustAdd(t, s, chunk("c1", []float32{1, 0}, nil))
	mustAdd(t, s, chunk("c2", []float32{1, 1}, nil))
	query := []float32{1, 0}

	for _, metric := range []Metric{Cosine, Euclidean, Manhattan, DotProduct} {
		results, err := s.Search(context.Background(), query, 10, metric, nil)
		if err != nil {
			t.Fatalf("%s: %v", metric, err)
		}
		if len(results) != 3 {
			t.Fatalf("%s: k >= size must return all chunks, got %d", metric, len(results))
		}
		for i := 1; i < len(results); i++ {
			prev, cur := results[i-1].Score, results[i].Score
			if metric.HigherIsBetter() && cur > prev {
				t.Errorf("%s: not descending at %d: %v then %v", metric, i, prev, cur)
			}
			if !metric.HigherIsBetter() && cur < prev {
				t.Errorf("%s: not ascending at %d: %v then %v", metric, i, prev, cur)
			}
		}
		if metric != DotProduct && results[0].Chunk.ID != "c1" {
			t.Errorf("%s: best = %s, want c1", metric, results[0].Chunk.ID)
		}
	}
}

func TestSearch_TieBreakInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("first", []float32{1, 0}, nil))
	mustAdd(t, s, chunk("second", []float32{1, 0}, nil))
	mustAdd(t, s, chunk("third", []float32{1, 0}, nil))

	results, err := s.Search(context.Background(), []float32{1, 0}, 3, Cosine, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if results[i].Chunk.ID != w {
			t.Errorf("position %d: got %s, want %s", i, results[i].Chunk.ID, w)
		}
	}
}

func TestSearch_TopK(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 10; i++ {
		mustAdd(t, s, chunk(fmt.Sprintf("c%d", i), []float32{float32(i), 1}, nil))
	}
	results, err := s.Search(context.Background(), []float32{0, 1}, 4, Euclidean, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Errorf("len = %d, want 4", len(results))
	}
	if results[0].Chunk.ID != "c0" {
		t.Errorf("best = %s, want c0", results[0].Chunk.ID)
	}
}

func TestSearch_MetadataFilter(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, domain.Metadata{"category": "food", "page": int64(1)}))
	mustAdd(t, s, chunk("b", []float32{0.9, 0.1}, domain.Metadata{"category": "animals", "page": int64(2)}))
	mustAdd(t, s, chunk("c", []float32{0.8, 0.2}, domain.Metadata{"category": "animals", "page": int64(9)}))

	results, err := s.Search(context.Background(), []float32{1, 0}, 5, Cosine,
		Filter{"category": Eq("animals"), "page": AtMost(5)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "b" {
		t.Errorf("got %+v, want only b", results)
	}
}

func TestSearch_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, nil))
	mustAdd(t, s, chunk("b", []float32{0, 1}, nil))
	mustAdd(t, s, chunk("c", []float32{1, 1}, nil))

	first, err := s.Search(context.Background(), []float32{1, 0.5}, 3, Cosine, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Search(context.Background(), []float32{1, 0.5}, 3, Cosine, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical searches against an unmodified store must return identical results")
	}
}

func TestRemove(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, nil))
	mustAdd(t, s, chunk("b", []float32{0, 1}, nil))

	if !s.Remove("a") {
		t.Error("expected removal of existing chunk")
	}
	if s.Remove("a") {
		t.Error("expected false for already-removed chunk")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("removed chunk still retrievable")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestStats(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0, 0}, domain.Metadata{"category": "food"}))
	mustAdd(t, s, chunk("b", []float32{0, 1, 0}, domain.Metadata{"category": "animals", "page": int64(2)}))

	st := s.Stats()
	if st.Chunks != 2 || st.Dimension != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.MetadataKeys["category"] != 2 || st.MetadataKeys["page"] != 1 {
		t.Errorf("metadata keys = %v", st.MetadataKeys)
	}
	if len(st.Metrics) != 4 {
		t.Errorf("metrics = %v", st.Metrics)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("a", []float32{1, 0}, domain.Metadata{"category": "food"}))
	mustAdd(t, s, chunk("b", []float32{0, 1}, nil))

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewMemoryStore()
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("loaded len = %d, want 2", loaded.Len())
	}

	orig, _ := s.Search(context.Background(), []float32{1, 0}, 2, Cosine, nil)
	got, _ := loaded.Search(context.Background(), []float32{1, 0}, 2, Cosine, nil)
	if !reflect.DeepEqual(orig, got) {
		t.Error("loaded store ranks differently from original")
	}
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := NewMemoryStore()
	mustAdd(t, s, chunk("seed", []float32{1, 0}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.Search(context.Background(), []float32{1, 0}, 5, Cosine, nil); err != nil {
					t.Errorf("search: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			_ = s.Add(chunk(fmt.Sprintf("w%d", j), []float32{0, 1}, nil))
		}
	}()
	wg.Wait()

	if s.Len() != 101 {
		t.Errorf("len = %d, want 101", s.Len())
	}
}

func mustAdd(t *testing.T, s *MemoryStore, c Chunk) {
	t.Helper()
	if err := s.Add(c); err != nil {
		t.Fatalf("add %s: %v", c.ID, err)
	}
}
