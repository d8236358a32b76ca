// Package ingest turns documents into embedded chunks in the vector store.
// The pipeline runs validation, chunking, embedding, and storage as composed
// stages; documents arrive over NATS or directly from the API.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/fn"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
)

const (
	// Subject is the NATS subject for incoming documents.
	Subject = "veritas.ingest"
	// DLQSubject is the dead letter queue for documents that keep failing.
	DLQSubject = "veritas.ingest.dlq"
	// MaxRetries before a document goes to the DLQ.
	MaxRetries = 3
	// EmbedBatchSize caps the number of texts per embedding call.
	EmbedBatchSize = 100
	// embedWorkers is how many embedding batches run concurrently.
	embedWorkers = 4
)

// Embedder is the batch embedding surface the pipeline consumes.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Storer receives the finished chunks of one document.
type Storer interface {
	Store(ctx context.Context, chunks []semantic.Chunk) error
}

// Deps holds the external dependencies of the pipeline.
type Deps struct {
	Embedder Embedder
	Store    Storer
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Validate rejects documents without an ID or text.
var Validate fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	if err := domain.ValidateDocument(doc); err != nil {
		return fn.Err[domain.Document](err)
	}
	return fn.Ok(doc)
}

// ChunkDoc splits a document into overlapping parts. Short documents become
// a single part.
var ChunkDoc fn.Stage[domain.Document, ChunkedDoc] = func(_ context.Context, doc domain.Document) fn.Result[ChunkedDoc] {
	parts := chunkSentences(splitSentences(doc.Text), DefaultChunkSize, DefaultOverlap)
	if len(parts) == 0 {
		parts = []Part{{Text: doc.Text, Index: 0}}
	}
	return fn.Ok(ChunkedDoc{Doc: doc, Parts: parts})
}

// NewEmbed creates the embedding stage. Parts are embedded in batches of
// EmbedBatchSize, with batches running concurrently; embeddings come back in
// part order.
func NewEmbed(embedder Embedder) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		type batch struct {
			offset int
			texts  []string
		}
		var batches []batch
		for i := 0; i < len(doc.Parts); i += EmbedBatchSize {
			end := min(i+EmbedBatchSize, len(doc.Parts))
			texts := make([]string, end-i)
			for j, p := range doc.Parts[i:end] {
				texts[j] = p.Text
			}
			batches = append(batches, batch{offset: i, texts: texts})
		}

		embeddings := make([][]float32, len(doc.Parts))
		results := fn.ParMapResult(batches, embedWorkers, func(b batch) fn.Result[batch] {
			vecs, err := embedder.EmbedBatch(ctx, b.texts)
			if err != nil {
				return fn.Err[batch](fmt.Errorf("embed batch at %d: %w", b.offset, err))
			}
			if len(vecs) != len(b.texts) {
				return fn.Errf[batch]("embed batch at %d: got %d vectors for %d texts", b.offset, len(vecs), len(b.texts))
			}
			for j, vec := range vecs {
				embeddings[b.offset+j] = vec
			}
			return fn.Ok(b)
		})
		if collected := fn.Collect(results); collected.IsErr() {
			_, err := collected.Unwrap()
			return fn.Err[EmbeddedDoc](err)
		}

		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates the storage stage. Each part becomes one chunk whose
// metadata inherits the document metadata plus provenance keys.
func NewStore(store Storer, reg *metrics.Registry) fn.Stage[EmbeddedDoc, string] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		chunks := make([]semantic.Chunk, len(doc.Parts))
		for i, part := range doc.Parts {
			md := doc.Doc.Metadata.Clone()
			if md == nil {
				md = domain.Metadata{}
			}
			md[domain.MetaDocID] = doc.Doc.ID
			md[domain.MetaChunkIndex] = int64(part.Index)
			if doc.Doc.Source != "" {
				md[domain.MetaSource] = doc.Doc.Source
			}
			chunks[i] = semantic.Chunk{
				ID:        fmt.Sprintf("%s#%d", doc.Doc.ID, part.Index),
				Text:      part.Text,
				Embedding: doc.Embeddings[i],
				Metadata:  md,
			}
		}
		if err := store.Store(ctx, chunks); err != nil {
			return fn.Err[string](fmt.Errorf("store chunks: %w", err))
		}
		if reg != nil {
			reg.Counter("ingest_chunks_total", "Chunks written to the store").Add(int64(len(chunks)))
			if sized, ok := store.(interface{ Len() int }); ok {
				reg.Gauge("store_chunks", "Chunks currently in the store").Set(int64(sized.Len()))
			}
		}
		return fn.Ok(doc.Doc.ID)
	}
}

// NewPipeline wires the full pipeline: Validate → Chunk → Embed → Store,
// each stage traced. The embed stage retries transient upstream failures.
func NewPipeline(deps Deps) fn.Stage[domain.Document, string] {
	embed := fn.RetryStage(fn.DefaultRetry, NewEmbed(deps.Embedder))

	chunked := fn.Then(fn.TracedStage("ingest.validate", Validate), fn.TracedStage("ingest.chunk", ChunkDoc))
	embedded := fn.Then(chunked, fn.TracedStage("ingest.embed", embed))
	return fn.Then(embedded, fn.TracedStage("ingest.store", NewStore(deps.Store, deps.Metrics)))
}
