package ingest

import (
	"context"

	"github.com/VeritasAI/veritas-engine/engine/semantic"
)

// MemorySink stores chunks in an in-memory store.
type MemorySink struct {
	store *semantic.MemoryStore
}

func NewMemorySink(store *semantic.MemoryStore) MemorySink {
	return MemorySink{store: store}
}

func (s MemorySink) Store(_ context.Context, chunks []semantic.Chunk) error {
	return s.store.AddBatch(chunks)
}

// Len reports how many chunks the underlying store holds.
func (s MemorySink) Len() int { return s.store.Len() }

// QdrantSink upserts chunks into a Qdrant collection.
type QdrantSink struct {
	store *semantic.QdrantStore
}

func NewQdrantSink(store *semantic.QdrantStore) QdrantSink {
	return QdrantSink{store: store}
}

func (s QdrantSink) Store(ctx context.Context, chunks []semantic.Chunk) error {
	return s.store.Upsert(ctx, chunks)
}
