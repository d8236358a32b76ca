package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
)

// mockEmbedder returns a fixed-dimension vector per text and records batch sizes.
type mockEmbedder struct {
	mu         sync.Mutex
	dim        int
	err        error
	batchSizes []int
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(texts))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func TestSplitSentences(t *testing.T) {
	text := "First sentence. Second one! Third?\nFourth on its own line"
	got := splitSentences(text)
	want := []string{"First sentence.", "Second one!", "Third?", "Fourth on its own line"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesEmpty(t *testing.T) {
	if got := splitSentences("   "); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestChunkSentencesRespectsSizeAndOverlap(t *testing.T) {
	var sentences []string
	for i := 0; i < 20; i++ {
		sentences = append(sentences, fmt.Sprintf("sentence number %d here.", i))
	}

	parts := chunkSentences(sentences, 10, 4)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	for i, p := range parts {
		if p.Index != i {
			t.Errorf("part %d has index %d", i, p.Index)
		}
		if wordCount(p.Text) > 10+4 {
			t.Errorf("part %d exceeds chunk size: %d words", i, wordCount(p.Text))
		}
	}
	// Overlap: the last sentence of part 0 reappears in part 1.
	last := sentences[0]
	for _, s := range sentences {
		if strings.Contains(parts[0].Text, s) {
			last = s
		}
	}
	if !strings.Contains(parts[1].Text, last) {
		t.Errorf("expected overlap of %q into part 1: %q", last, parts[1].Text)
	}
}

func TestChunkSentencesForwardProgress(t *testing.T) {
	// Overlap larger than chunk size must not loop forever.
	sentences := []string{"a b c.", "d e f.", "g h i."}
	parts := chunkSentences(sentences, 3, 100)
	if len(parts) == 0 || len(parts) > len(sentences) {
		t.Fatalf("unexpected part count %d", len(parts))
	}
}

func TestChunkDocShortTextSingleChunk(t *testing.T) {
	res := ChunkDoc(context.Background(), domain.Document{ID: "d1", Text: "tiny"})
	doc, err := res.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Parts) != 1 || doc.Parts[0].Text != "tiny" {
		t.Fatalf("expected single part, got %+v", doc.Parts)
	}
}

func TestPipelineStoresChunksWithProvenance(t *testing.T) {
	store := semantic.NewMemoryStore()
	reg := metrics.New()
	deps := Deps{
		Embedder: &mockEmbedder{dim: 4},
		Store:    NewMemorySink(store),
		Metrics:  reg,
	}
	pipeline := NewPipeline(deps)

	doc := domain.Document{
		ID:     "manual-7",
		Source: "manual.pdf",
		Text:   "The relay closes under load. The fuse protects the circuit.",
		Metadata: domain.Metadata{
			domain.MetaCategory: "electrical",
			domain.MetaPage:     int64(12),
		},
	}
	res := pipeline(context.Background(), doc)
	docID, err := res.Unwrap()
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if docID != "manual-7" {
		t.Errorf("unexpected doc id %q", docID)
	}
	if store.Len() == 0 {
		t.Fatal("expected chunks in store")
	}

	chunk, ok := store.Get("manual-7#0")
	if !ok {
		t.Fatal("expected chunk manual-7#0")
	}
	if chunk.Metadata[domain.MetaDocID] != "manual-7" {
		t.Errorf("missing doc id metadata: %v", chunk.Metadata)
	}
	if chunk.Metadata[domain.MetaSource] != "manual.pdf" {
		t.Errorf("missing source metadata: %v", chunk.Metadata)
	}
	if chunk.Metadata[domain.MetaChunkIndex] != int64(0) {
		t.Errorf("missing chunk index metadata: %v", chunk.Metadata)
	}
	if chunk.Metadata[domain.MetaCategory] != "electrical" {
		t.Errorf("document metadata not inherited: %v", chunk.Metadata)
	}
	// Inherited metadata is a copy, not an alias.
	if chunk.Metadata[domain.MetaPage] != int64(12) {
		t.Errorf("page metadata not inherited: %v", chunk.Metadata)
	}

	if got := reg.Gauge("store_chunks", "").Value(); got != int64(store.Len()) {
		t.Errorf("store_chunks gauge = %d, store has %d", got, store.Len())
	}
	if reg.Counter("ingest_chunks_total", "").Value() == 0 {
		t.Error("ingest_chunks_total not incremented")
	}
}

func TestPipelineRejectsInvalidDocuments(t *testing.T) {
	store := semantic.NewMemoryStore()
	pipeline := NewPipeline(Deps{Embedder: &mockEmbedder{dim: 4}, Store: NewMemorySink(store)})

	res := pipeline(context.Background(), domain.Document{ID: "", Text: "no id"})
	if res.IsOk() {
		t.Fatal("expected validation failure")
	}
	if store.Len() != 0 {
		t.Error("store must stay empty on validation failure")
	}
}

func TestEmbedStageBatches(t *testing.T) {
	embedder := &mockEmbedder{dim: 4}
	stage := NewEmbed(embedder)

	doc := ChunkedDoc{Doc: domain.Document{ID: "d1"}}
	for i := 0; i < 250; i++ {
		doc.Parts = append(doc.Parts, Part{Text: fmt.Sprintf("part %d", i), Index: i})
	}

	out, err := stage(context.Background(), doc).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Embeddings) != 250 {
		t.Fatalf("expected 250 embeddings, got %d", len(out.Embeddings))
	}
	for i, vec := range out.Embeddings {
		if vec == nil {
			t.Fatalf("embedding %d missing", i)
		}
	}
	if len(embedder.batchSizes) != 3 {
		t.Fatalf("expected 3 batches, got %v", embedder.batchSizes)
	}
	total := 0
	for _, n := range embedder.batchSizes {
		if n > EmbedBatchSize {
			t.Errorf("batch exceeds cap: %d", n)
		}
		total += n
	}
	if total != 250 {
		t.Errorf("batches cover %d parts, want 250", total)
	}
}

func TestEmbedStageError(t *testing.T) {
	embedder := &mockEmbedder{dim: 4, err: errors.New("model down")}
	stage := NewEmbed(embedder)

	res := stage(context.Background(), ChunkedDoc{Parts: []Part{{Text: "x"}}})
	if res.IsOk() {
		t.Fatal("expected error")
	}
}

func TestStoreStageSurfacesDimensionMismatch(t *testing.T) {
	store := semantic.NewMemoryStore()
	if err := store.Add(semantic.Chunk{ID: "seed", Text: "s", Embedding: []float32{1, 2}}); err != nil {
		t.Fatal(err)
	}

	stage := NewStore(NewMemorySink(store), nil)
	doc := EmbeddedDoc{
		ChunkedDoc: ChunkedDoc{Doc: domain.Document{ID: "d1"}, Parts: []Part{{Text: "x", Index: 0}}},
		Embeddings: [][]float32{{1, 2, 3}},
	}
	_, err := stage(context.Background(), doc).Unwrap()
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if store.Len() != 1 {
		t.Error("failed store must not grow")
	}
}
