package ingest

import "github.com/VeritasAI/veritas-engine/engine/domain"

// Part is a text segment of a document, ready for embedding.
type Part struct {
	Text  string
	Index int
}

// ChunkedDoc is a document split into embeddable parts.
type ChunkedDoc struct {
	Doc   domain.Document
	Parts []Part
}

// EmbeddedDoc carries one embedding per part, in part order.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}
