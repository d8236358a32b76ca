package semantic

import (
	"errors"
	"math"
	"testing"

	"github.com/VeritasAI/veritas-engine/engine/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseMetric(t *testing.T) {
	cases := map[string]Metric{
		"cosine":      Cosine,
		"euclidean":   Euclidean,
		"manhattan":   Manhattan,
		"dot_product": DotProduct,
	}
	for name, want := range cases {
		got, err := ParseMetric(name)
		if err != nil {
			t.Fatalf("ParseMetric(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseMetric(%q) = %v, want %v", name, got, want)
		}
		if got.String() != name {
			t.Errorf("String() = %q, want %q", got.String(), name)
		}
	}

	if _, err := ParseMetric("chebyshev"); !errors.Is(err, domain.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestMetric_Direction(t *testing.T) {
	if !Cosine.HigherIsBetter() || !DotProduct.HigherIsBetter() {
		t.Error("similarity metrics must rank descending")
	}
	if Euclidean.HigherIsBetter() || Manhattan.HigherIsBetter() {
		t.Error("distance metrics must rank ascending")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if got := CosineSimilarity(a, a); !almostEqual(got, 1) {
		t.Errorf("identical vectors: got %v, want 1", got)
	}
	if got := CosineSimilarity(a, b); !almostEqual(got, 0) {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{-1, 0, 0}); !almostEqual(got, -1) {
		t.Errorf("opposite vectors: got %v, want -1", got)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	if got := CosineSimilarity(zero, []float32{1, 2, 3}); got != 0 {
		t.Errorf("zero vector: got %v, want 0", got)
	}
	if got := CosineSimilarity(zero, zero); got != 0 {
		t.Errorf("both zero: got %v, want 0", got)
	}
}

func TestMetric_Score(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}

	if got := Euclidean.Score(a, b); !almostEqual(got, 5) {
		t.Errorf("euclidean: got %v, want 5", got)
	}
	if got := Manhattan.Score(a, b); !almostEqual(got, 7) {
		t.Errorf("manhattan: got %v, want 7", got)
	}
	if got := DotProduct.Score([]float32{1, 2}, b); !almostEqual(got, 11) {
		t.Errorf("dot product: got %v, want 11", got)
	}
	// Dot product is magnitude-sensitive: doubling one vector doubles the score.
	if got := DotProduct.Score([]float32{2, 4}, b); !almostEqual(got, 22) {
		t.Errorf("scaled dot product: got %v, want 22", got)
	}
}
