// Package domain defines core domain types, constants, and validation for the
// Veritas engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Document represents a unit of ingestable text. Extraction from its original
// container (PDF, transcript, web page) happens upstream; by the time a
// Document reaches the engine it is plain text plus metadata.
type Document struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Metadata maps field names to scalar values (string, int64, float64, bool).
// Values are set at ingestion and filtered on at query time, never mutated.
type Metadata map[string]any

// Clone returns a shallow copy. Metadata values are scalars, so a shallow
// copy is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Well-known metadata keys attached by ingestion.
const (
	MetaSource     = "source"
	MetaSourceType = "source_type" // "pdf", "transcript", "text"
	MetaPage       = "page"
	MetaTimestamp  = "timestamp"
	MetaCategory   = "category"
	MetaImportance = "importance"
	MetaChunkIndex = "chunk_index"
	MetaDocID      = "doc_id"
	MetaCreatedAt  = "created_at"
)

// Question represents a user question entering the pipeline.
type Question struct {
	Text    string    `json:"text"`
	AskedAt time.Time `json:"asked_at,omitempty"`
}
