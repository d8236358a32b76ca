package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("queries_total", "Total queries")
	if c.Value() != 0 {
		t.Fatalf("expected 0, got %d", c.Value())
	}
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("expected 7, got %d", c.Value())
	}
	// Same name returns same counter
	c2 := r.Counter("queries_total", "")
	if c2 != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("store_chunks", "Chunks held in the store")
	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %d", g.Value())
	}
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("expected 43, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	r := New()
	h := r.Histogram("query_duration_seconds", "Query latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0)

	bounds, counts, sum, total := h.snapshot()
	if total != 4 {
		t.Fatalf("expected total 4, got %d", total)
	}
	if len(bounds) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(bounds))
	}
	if counts[0] != 1 || counts[1] != 1 || counts[2] != 1 {
		t.Fatalf("unexpected bucket counts %v", counts)
	}
	expectedSum := 0.05 + 0.3 + 0.8 + 2.0
	if sum != expectedSum {
		t.Fatalf("expected sum %f, got %f", expectedSum, sum)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New()
	h := r.Histogram("latency", "", nil)
	start := time.Now().Add(-100 * time.Millisecond)
	h.Since(start)
	_, _, _, total := h.snapshot()
	if total != 1 {
		t.Fatal("expected 1 observation")
	}
}

func TestLabeled(t *testing.T) {
	got := Labeled("queries_total", "state", "fallback", "metric", "cosine")
	want := `queries_total{state="fallback",metric="cosine"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if Labeled("bar") != "bar" {
		t.Fatal("no labels should return name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("queries_total", "Total queries").Add(10)
	r.Counter(Labeled("queries_total", "state", "done"), "").Add(7)
	r.Counter(Labeled("queries_total", "state", "fallback"), "").Add(3)
	r.Gauge("store_chunks", "Chunks in store").Set(5)
	h := r.Histogram("query_duration_seconds", "Query latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()

	if !strings.Contains(out, "# TYPE queries_total counter") {
		t.Error("missing TYPE for counter")
	}
	if !strings.Contains(out, "# TYPE store_chunks gauge") {
		t.Error("missing TYPE for gauge")
	}
	if !strings.Contains(out, "# TYPE query_duration_seconds histogram") {
		t.Error("missing TYPE for histogram")
	}
	if !strings.Contains(out, "queries_total 10") {
		t.Error("missing plain counter value")
	}
	if !strings.Contains(out, `queries_total{state="done"} 7`) {
		t.Error("missing labeled counter")
	}
	if !strings.Contains(out, "store_chunks 5") {
		t.Error("missing gauge value")
	}
	if !strings.Contains(out, `query_duration_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("missing histogram bucket 0.1, got:\n%s", out)
	}
	if !strings.Contains(out, `query_duration_seconds_bucket{le="+Inf"} 2`) {
		t.Error("missing +Inf bucket")
	}
	if !strings.Contains(out, "query_duration_seconds_count 2") {
		t.Error("missing histogram count")
	}
}

func TestRenderKeepsRegistrationOrder(t *testing.T) {
	r := New()
	r.Counter("b_total", "").Inc()
	r.Counter("a_total", "").Inc()

	out := r.Render()
	if strings.Index(out, "b_total") > strings.Index(out, "a_total") {
		t.Fatal("families should render in registration order")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("queries_total", "test").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "queries_total 1") {
		t.Error("missing metric in handler output")
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo_total", "foo_total"},
		{`foo_total{k="v"}`, "foo_total"},
		{`foo{a="1",b="2"}`, "foo"},
	}
	for _, tt := range tests {
		got := baseName(tt.in)
		if got != tt.want {
			t.Errorf("baseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
