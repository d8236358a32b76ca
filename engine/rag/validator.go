package rag

import "github.com/VeritasAI/veritas-engine/engine/semantic"

// ContextQuality is the arithmetic mean of the cosine similarity between
// the question embedding and each retrieved chunk. It deliberately re-scores
// with cosine regardless of the metric used for retrieval, as a dedicated
// relevance check. Empty retrieval scores 0.
func ContextQuality(question []float32, retrieved []semantic.Scored) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	var sum float64
	for _, r := range retrieved {
		sum += semantic.CosineSimilarity(question, r.Chunk.Embedding)
	}
	return sum / float64(len(retrieved))
}

// Sufficient reports whether the context quality clears the relevance
// threshold. Empty retrieval is never sufficient, for any threshold.
func Sufficient(quality float64, retrieved []semantic.Scored, threshold float64) bool {
	return len(retrieved) > 0 && quality >= threshold
}
