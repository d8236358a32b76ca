package semantic

import (
	"fmt"
	"math"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

// Metric selects the distance or similarity function used by Search.
type Metric int

const (
	// Cosine similarity, range [-1, 1], higher is better. Defined as 0 when
	// either vector is all-zero.
	Cosine Metric = iota
	// Euclidean distance, lower is better.
	Euclidean
	// Manhattan distance (sum of absolute component differences), lower is better.
	Manhattan
	// DotProduct, higher is better. Not normalized: it is sensitive to vector
	// magnitude and biases toward longer documents unless embeddings are
	// magnitude-normalized upstream.
	DotProduct
)

var metricNames = map[Metric]string{
	Cosine:     "cosine",
	Euclidean:  "euclidean",
	Manhattan:  "manhattan",
	DotProduct: "dot_product",
}

// MetricNames lists the supported metric names in declaration order.
func MetricNames() []string {
	return []string{"cosine", "euclidean", "manhattan", "dot_product"}
}

// ParseMetric converts a metric name into a Metric.
func ParseMetric(s string) (Metric, error) {
	for m, name := range metricNames {
		if name == s {
			return m, nil
		}
	}
	return Cosine, fmt.Errorf("semantic: %w: %q", domain.ErrUnknownMetric, s)
}

func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return "unknown"
}

// HigherIsBetter reports the ranking direction: true for similarity metrics
// (cosine, dot product), false for distance metrics (euclidean, manhattan).
func (m Metric) HigherIsBetter() bool {
	return m == Cosine || m == DotProduct
}

// Score computes the metric between two equal-length vectors.
func (m Metric) Score(a, b []float32) float64 {
	switch m {
	case Cosine:
		return CosineSimilarity(a, b)
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case Manhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return sum
	case DotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	default:
		return 0
	}
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|). It returns 0 when either
// vector is all-zero, and 0 when lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
