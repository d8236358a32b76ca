// Package semantic implements the vector record store: embedded chunks with
// metadata, similarity search under selectable distance metrics, and metadata
// filtering. Two backends share the same search surface: an in-memory store
// and a Qdrant-backed store.
package semantic

import "github.com/VeritasAI/veritas-engine/engine/domain"

// Chunk is a retrievable unit of text with its embedding and metadata.
// Immutable once added to a store.
type Chunk struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Embedding []float32       `json:"embedding"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
}

// Scored pairs a chunk with its score under the metric used for retrieval.
type Scored struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Stats describes a store's contents. Used for observability, not correctness.
type Stats struct {
	Chunks       int            `json:"chunks"`
	Dimension    int            `json:"dimension"`
	MetadataKeys map[string]int `json:"metadata_keys"`
	Metrics      []string       `json:"metrics"`
}
