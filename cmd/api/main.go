// Command api serves the query pipeline over HTTP: answering questions,
// accepting documents for ingestion, and exposing store stats and metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/engine/ingest"
	"github.com/VeritasAI/veritas-engine/engine/rag"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/fn"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
	"github.com/VeritasAI/veritas-engine/pkg/mid"
	"github.com/VeritasAI/veritas-engine/pkg/natsutil"
	"github.com/VeritasAI/veritas-engine/pkg/ollama"
	"github.com/VeritasAI/veritas-engine/pkg/openai"
	"github.com/VeritasAI/veritas-engine/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	ModelBackend string // "ollama" or "openai"
	StoreBackend string // "memory" or "qdrant"

	OllamaURL  string
	EmbedModel string
	ChatModel  string
	OpenAIKey  string

	QdrantAddr string
	Collection string
	VectorDims int

	StorePath string // memory store snapshot, loaded at start and saved on shutdown
	NATSURL   string // empty means documents are ingested inline

	Metric             string
	TopK               int
	RelevanceThreshold float64
	AccuracyThreshold  float64
	Temperature        float64

	CORSOrigin string
	MaxBodyKB  int64
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		ModelBackend: envOr("MODEL_BACKEND", "ollama"),
		StoreBackend: envOr("STORE_BACKEND", "memory"),

		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", ""),
		ChatModel:  envOr("CHAT_MODEL", ""),
		OpenAIKey:  envOr("OPENAI_API_KEY", ""),

		QdrantAddr: envOr("QDRANT_ADDR", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "veritas"),
		VectorDims: envInt("VECTOR_DIMS", 768),

		StorePath: envOr("STORE_PATH", ""),
		NATSURL:   envOr("NATS_URL", ""),

		Metric:             envOr("SEARCH_METRIC", "cosine"),
		TopK:               envInt("TOP_K", 5),
		RelevanceThreshold: envFloat("RELEVANCE_THRESHOLD", 0.3),
		AccuracyThreshold:  envFloat("ACCURACY_THRESHOLD", 0.7),
		Temperature:        envFloat("TEMPERATURE", 0.3),

		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		MaxBodyKB:  int64(envInt("MAX_BODY_KB", 1024)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// modelClient is what both gateways provide: embedding for retrieval and
// ingestion plus chat completion.
type modelClient interface {
	rag.Embedder
	rag.Completer
	ingest.Embedder
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metric, err := semantic.ParseMetric(cfg.Metric)
	if err != nil {
		return err
	}

	// --- Model gateway ---
	var model modelClient
	switch cfg.ModelBackend {
	case "openai":
		if cfg.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
		model = openai.New(cfg.OpenAIKey, cfg.EmbedModel, cfg.ChatModel)
	case "ollama":
		embedModel := cfg.EmbedModel
		if embedModel == "" {
			embedModel = "nomic-embed-text"
		}
		chatModel := cfg.ChatModel
		if chatModel == "" {
			chatModel = "llama3.1:8b"
		}
		model = ollama.New(cfg.OllamaURL, embedModel, chatModel)
	default:
		return fmt.Errorf("unknown MODEL_BACKEND %q", cfg.ModelBackend)
	}

	// --- Store ---
	var (
		store    rag.Retriever
		sink     ingest.Storer
		memStore *semantic.MemoryStore
	)
	switch cfg.StoreBackend {
	case "memory":
		memStore = semantic.NewMemoryStore()
		if cfg.StorePath != "" {
			if err := loadSnapshot(memStore, cfg.StorePath); err != nil {
				return err
			}
			logger.Info("store snapshot loaded", "path", cfg.StorePath, "chunks", memStore.Len())
		}
		store = memStore
		sink = ingest.NewMemorySink(memStore)
	case "qdrant":
		qs, err := semantic.NewQdrant(cfg.QdrantAddr, cfg.Collection, metric)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer qs.Close()
		if err := qs.EnsureCollection(ctx, cfg.VectorDims); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		store = qs
		sink = ingest.NewQdrantSink(qs)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	// --- NATS (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name("veritas-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	reg := metrics.New()
	guard := resilience.NewGuard(resilience.DefaultGuardOpts)

	ragCfg := rag.Config{
		Store:     store,
		Embedder:  model,
		Completer: model,
		Guard:     guard,
		Metrics:   reg,
		Options: rag.Options{
			TopK:               cfg.TopK,
			Metric:             metric,
			RelevanceThreshold: cfg.RelevanceThreshold,
			AccuracyThreshold:  cfg.AccuracyThreshold,
			Temperature:        cfg.Temperature,
		},
		Logger: logger,
	}
	svc := rag.New(ragCfg)

	ingestDeps := ingest.Deps{Embedder: model, Store: sink, Metrics: reg, Logger: logger}
	pipeline := ingest.NewPipeline(ingestDeps)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/query", handleQuery(svc, logger))
	mux.HandleFunc("POST /api/documents", handleDocuments(nc, pipeline, logger))
	mux.HandleFunc("GET /api/stats", handleStats(memStore, cfg))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.AccessLog(logger),
		mid.OTel("veritas-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.MaxBytes(cfg.MaxBodyKB*1024),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "store", cfg.StoreBackend, "model", cfg.ModelBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}

	if memStore != nil && cfg.StorePath != "" {
		if err := saveSnapshot(memStore, cfg.StorePath); err != nil {
			return err
		}
		logger.Info("store snapshot saved", "path", cfg.StorePath, "chunks", memStore.Len())
	}
	return nil
}

func loadSnapshot(store *semantic.MemoryStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return store.Load(f)
}

func saveSnapshot(store *semantic.MemoryStore, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()
	return store.Save(f)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
}

func handleQuery(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		answer, err := svc.Run(r.Context(), req.Question)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answer)
	}
}

func handleDocuments(nc *nats.Conn, pipeline fn.Stage[domain.Document, string], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc domain.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := domain.ValidateDocument(doc); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		// Publish to the ingest worker when NATS is configured, otherwise
		// ingest inline.
		if nc != nil {
			if err := natsutil.Publish(r.Context(), nc, ingest.Subject, doc); err != nil {
				logger.Error("ingest publish failed", "err", err)
				http.Error(w, `{"error":"ingest queue unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "queued", "doc_id": doc.ID})
			return
		}

		docID, err := pipeline(r.Context(), doc).Unwrap()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"status": "stored", "doc_id": docID})
	}
}

func handleStats(memStore *semantic.MemoryStore, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if memStore != nil {
			json.NewEncoder(w).Encode(memStore.Stats())
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"backend":    cfg.StoreBackend,
			"collection": cfg.Collection,
			"metric":     cfg.Metric,
		})
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrQueryTooShort):
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		logger.Error("upstream unavailable", "err", err)
		http.Error(w, `{"error":"model service unavailable"}`, http.StatusServiceUnavailable)
	default:
		logger.Error("query failed", "err", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}
