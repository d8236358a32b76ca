// Package rag runs the query pipeline: retrieve, validate context, generate,
// fact-check, and correct when the draft fails the faithfulness gate. The
// pipeline is an explicit state machine; every transition is deterministic
// given the query context, though the model calls inside a stage are not.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
	"github.com/VeritasAI/veritas-engine/pkg/resilience"
)

const tracerName = "engine/rag"

// Embedder maps text to a fixed-length vector. The vector length is a
// property of the model, not of this package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer runs one chat turn against a language model.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Retriever is the store surface the pipeline depends on.
type Retriever interface {
	Search(ctx context.Context, embedding []float32, k int, metric semantic.Metric, filter semantic.Filter) ([]semantic.Scored, error)
}

// Options configures the pipeline's policy knobs.
type Options struct {
	// TopK is how many chunks to retrieve.
	TopK int
	// Metric selects the retrieval distance metric.
	Metric semantic.Metric
	// Filter restricts retrieval by chunk metadata; nil means no filter.
	Filter semantic.Filter
	// RelevanceThreshold is the minimum context quality to attempt generation.
	RelevanceThreshold float64
	// AccuracyThreshold is the minimum fact-check score to skip correction.
	AccuracyThreshold float64
	// Temperature applies to generation and correction. Fact-check scoring
	// always runs at temperature 0.
	Temperature float64
	// UpstreamTimeout bounds each model call when no Guard is configured.
	UpstreamTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:               5,
		Metric:             semantic.Cosine,
		RelevanceThreshold: 0.3,
		AccuracyThreshold:  0.7,
		Temperature:        0.3,
		UpstreamTimeout:    30 * time.Second,
	}
}

// QueryContext accumulates per-request state as it moves through the
// pipeline. It is created at request start and discarded after the answer
// is produced; it is never shared across requests.
type QueryContext struct {
	Question          string
	QuestionEmbedding []float32
	Retrieved         []semantic.Scored
	ContextQuality    float64
	Sufficient        bool
	Draft             string
	FactCheckScore    float64
	FactChecked       bool
	Corrected         bool
	FinalResponse     string
}

// Source represents a citation backing the answer.
type Source struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Page      any     `json:"page,omitempty"`
	Timestamp any     `json:"timestamp,omitempty"`
}

// Answer is the structured terminal output of the pipeline.
type Answer struct {
	Text           string   `json:"text"`
	Sources        []Source `json:"sources,omitempty"`
	ContextQuality float64  `json:"context_quality"`
	// FactCheckScore is nil when the fallback path was taken.
	FactCheckScore *float64 `json:"fact_check_score,omitempty"`
	Corrected      bool     `json:"corrected"`
	Fallback       bool     `json:"fallback"`
}

// Config wires a Service.
type Config struct {
	Store     Retriever
	Embedder  Embedder
	Completer Completer
	// Guard, when set, wraps every model call with rate limiting, a circuit
	// breaker, and the guard's own timeout.
	Guard   *resilience.Guard
	Metrics *metrics.Registry
	Options Options
	Logger  *slog.Logger
}

// Service runs questions through the pipeline.
type Service struct {
	store Retriever
	embed Embedder
	model Completer
	guard *resilience.Guard
	reg   *metrics.Registry
	opts  Options
	log   *slog.Logger
}

// New creates a Service. Zero TopK and UpstreamTimeout fall back to the
// defaults; thresholds are taken as given since zero is a valid value.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.TopK <= 0 {
		cfg.Options.TopK = DefaultOptions().TopK
	}
	if cfg.Options.UpstreamTimeout <= 0 {
		cfg.Options.UpstreamTimeout = DefaultOptions().UpstreamTimeout
	}
	return &Service{
		store: cfg.Store,
		embed: cfg.Embedder,
		model: cfg.Completer,
		guard: cfg.Guard,
		reg:   cfg.Metrics,
		opts:  cfg.Options,
		log:   cfg.Logger,
	}
}

// Run executes the pipeline for one question.
func (s *Service) Run(ctx context.Context, question string) (*Answer, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return nil, err
	}

	s.log.Info("query start", "question_len", len(question), "metric", s.opts.Metric.String())
	start := time.Now()
	qc := &QueryContext{Question: question}
	state := StateRetrieve

	for state != StateDone {
		next, err := s.step(ctx, state, qc)
		if err != nil {
			s.count("error")
			s.log.Error("pipeline failed", "state", state.String(), "error", err)
			return nil, err
		}
		s.log.Debug("transition", "from", state.String(), "to", next.String())
		state = next
	}

	ans := s.answer(qc)
	s.observe(qc, time.Since(start))
	s.log.Info("query answered",
		"quality", qc.ContextQuality,
		"fallback", ans.Fallback,
		"corrected", qc.Corrected,
		"duration", time.Since(start),
	)
	return ans, nil
}

// step runs one state and returns the next.
func (s *Service) step(ctx context.Context, state State, qc *QueryContext) (State, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag."+state.String())
	defer span.End()

	switch state {
	case StateRetrieve:
		if err := s.retrieve(ctx, qc); err != nil {
			return state, err
		}
		span.SetAttributes(attribute.Int("retrieved", len(qc.Retrieved)))
		return StateValidateContext, nil

	case StateValidateContext:
		qc.ContextQuality = ContextQuality(qc.QuestionEmbedding, qc.Retrieved)
		qc.Sufficient = Sufficient(qc.ContextQuality, qc.Retrieved, s.opts.RelevanceThreshold)
		span.SetAttributes(attribute.Float64("quality", qc.ContextQuality))
		if !qc.Sufficient {
			return StateFallback, nil
		}
		return StateGenerate, nil

	case StateFallback:
		qc.FinalResponse = FallbackResponse
		return StateDone, nil

	case StateGenerate:
		err := s.upstream(ctx, "generate", func(ctx context.Context) error {
			draft, err := s.model.Complete(ctx, generateSystem, generatePrompt(qc.Question, qc.Retrieved), s.opts.Temperature)
			qc.Draft = draft
			return err
		})
		if err != nil {
			return state, err
		}
		return StateFactCheck, nil

	case StateFactCheck:
		var reply string
		err := s.upstream(ctx, "fact check", func(ctx context.Context) error {
			var err error
			reply, err = s.model.Complete(ctx, factCheckSystem, factCheckPrompt(qc.Draft, qc.Retrieved), 0)
			return err
		})
		if err != nil {
			return state, err
		}
		score, err := parseScore(reply)
		if err != nil {
			// Unparsable scorer output degrades to the neutral score.
			s.log.Warn("fact check score unparsable", "error", err)
			score = neutralScore
		}
		qc.FactCheckScore = score
		qc.FactChecked = true
		span.SetAttributes(attribute.Float64("score", score))
		if score < s.opts.AccuracyThreshold {
			return StateCorrect, nil
		}
		return StateFinalize, nil

	case StateCorrect:
		err := s.upstream(ctx, "correct", func(ctx context.Context) error {
			corrected, err := s.model.Complete(ctx, correctSystem, correctPrompt(qc.Question, qc.Draft, qc.Retrieved), s.opts.Temperature)
			if err != nil {
				return err
			}
			qc.Draft = corrected
			return nil
		})
		if err != nil {
			return state, err
		}
		qc.Corrected = true
		return StateFinalize, nil

	case StateFinalize:
		qc.FinalResponse = qc.Draft
		return StateDone, nil

	default:
		return state, fmt.Errorf("rag: invalid state %d", state)
	}
}

// retrieve embeds the question and searches the store. An empty store or a
// filter that matches nothing is not an error here; it flows into validation
// as zero retrieved chunks and drives the fallback path.
func (s *Service) retrieve(ctx context.Context, qc *QueryContext) error {
	err := s.upstream(ctx, "embed query", func(ctx context.Context) error {
		vec, err := s.embed.Embed(ctx, qc.Question)
		qc.QuestionEmbedding = vec
		return err
	})
	if err != nil {
		return err
	}

	retrieved, err := s.store.Search(ctx, qc.QuestionEmbedding, s.opts.TopK, s.opts.Metric, s.opts.Filter)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyStore) {
			qc.Retrieved = nil
			return nil
		}
		return fmt.Errorf("rag: search: %w", err)
	}
	qc.Retrieved = retrieved
	return nil
}

// upstream runs a model call through the guard, or with the configured
// timeout when no guard is set, and maps infrastructure failures to
// ErrUpstreamUnavailable so callers can tell tooling failure apart from
// missing knowledge.
func (s *Service) upstream(ctx context.Context, op string, f func(context.Context) error) error {
	call := f
	if s.guard == nil && s.opts.UpstreamTimeout > 0 {
		call = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
			defer cancel()
			return f(ctx)
		}
	}

	err := s.guard.Do(ctx, call)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return fmt.Errorf("rag: %s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("rag: %s: %w: %w", op, domain.ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("rag: %s: %w", op, err)
}

func (s *Service) answer(qc *QueryContext) *Answer {
	ans := &Answer{
		Text:           qc.FinalResponse,
		ContextQuality: qc.ContextQuality,
		Corrected:      qc.Corrected,
		Fallback:       !qc.Sufficient,
	}
	if qc.FactChecked {
		score := qc.FactCheckScore
		ans.FactCheckScore = &score
	}
	for _, r := range qc.Retrieved {
		src := Source{ID: r.Chunk.ID, Score: r.Score}
		if r.Chunk.Metadata != nil {
			src.Page = r.Chunk.Metadata[domain.MetaPage]
			src.Timestamp = r.Chunk.Metadata[domain.MetaTimestamp]
		}
		ans.Sources = append(ans.Sources, src)
	}
	return ans
}

var scoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

func (s *Service) count(outcome string) {
	if s.reg == nil {
		return
	}
	s.reg.Counter(metrics.Labeled("rag_queries_total", "outcome", outcome), "Queries by terminal outcome").Inc()
}

func (s *Service) observe(qc *QueryContext, elapsed time.Duration) {
	if s.reg == nil {
		return
	}
	switch {
	case !qc.Sufficient:
		s.count("fallback")
	case qc.Corrected:
		s.count("corrected")
	default:
		s.count("finalized")
	}
	s.reg.Histogram("rag_query_duration_seconds", "End-to-end query latency", nil).Observe(elapsed.Seconds())
	s.reg.Histogram("rag_context_quality", "Validator context quality", scoreBuckets).Observe(qc.ContextQuality)
	if qc.FactChecked {
		s.reg.Histogram("rag_fact_check_score", "Fact check faithfulness score", scoreBuckets).Observe(qc.FactCheckScore)
	}
}
