// Command query runs a single question through the pipeline and prints the
// answer with its sources.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/VeritasAI/veritas-engine/engine/rag"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/ollama"
	"github.com/VeritasAI/veritas-engine/pkg/openai"
)

func main() {
	var (
		question   = flag.String("q", "", "question to ask")
		storePath  = flag.String("store", "", "memory store snapshot to load")
		qdrantAddr = flag.String("qdrant", "", "Qdrant gRPC address (overrides -store)")
		collection = flag.String("collection", "veritas", "Qdrant collection name")
		backend    = flag.String("backend", "ollama", "model backend: ollama or openai")
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("embed-model", "", "embedding model")
		chatModel  = flag.String("chat-model", "", "chat model")
		metricName = flag.String("metric", "cosine", "retrieval metric: cosine, euclidean, manhattan, dot_product")
		topK       = flag.Int("topk", 5, "chunks to retrieve")
		relevance  = flag.Float64("relevance", 0.3, "context quality threshold")
		accuracy   = flag.Float64("accuracy", 0.7, "fact check threshold")
		temp       = flag.Float64("temp", 0.3, "generation temperature")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: query -q \"your question\" [-store snapshot.json | -qdrant addr]")
		os.Exit(2)
	}

	if err := run(*question, cliConfig{
		storePath:  *storePath,
		qdrantAddr: *qdrantAddr,
		collection: *collection,
		backend:    *backend,
		ollamaURL:  *ollamaURL,
		embedModel: *embedModel,
		chatModel:  *chatModel,
		metricName: *metricName,
		topK:       *topK,
		relevance:  *relevance,
		accuracy:   *accuracy,
		temp:       *temp,
	}, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	storePath  string
	qdrantAddr string
	collection string
	backend    string
	ollamaURL  string
	embedModel string
	chatModel  string
	metricName string
	topK       int
	relevance  float64
	accuracy   float64
	temp       float64
}

func run(question string, cfg cliConfig, logger *slog.Logger) error {
	ctx := context.Background()

	metric, err := semantic.ParseMetric(cfg.metricName)
	if err != nil {
		return err
	}

	var store rag.Retriever
	if cfg.qdrantAddr != "" {
		qs, err := semantic.NewQdrant(cfg.qdrantAddr, cfg.collection, metric)
		if err != nil {
			return err
		}
		defer qs.Close()
		store = qs
	} else {
		mem := semantic.NewMemoryStore()
		if cfg.storePath != "" {
			f, err := os.Open(cfg.storePath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := mem.Load(f); err != nil {
				return err
			}
		}
		store = mem
	}

	var model interface {
		rag.Embedder
		rag.Completer
	}
	switch cfg.backend {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
		model = openai.New(key, cfg.embedModel, cfg.chatModel)
	case "ollama":
		embedModel := cfg.embedModel
		if embedModel == "" {
			embedModel = "nomic-embed-text"
		}
		chatModel := cfg.chatModel
		if chatModel == "" {
			chatModel = "llama3.1:8b"
		}
		model = ollama.New(cfg.ollamaURL, embedModel, chatModel)
	default:
		return fmt.Errorf("unknown backend %q", cfg.backend)
	}

	svc := rag.New(rag.Config{
		Store:     store,
		Embedder:  model,
		Completer: model,
		Options: rag.Options{
			TopK:               cfg.topK,
			Metric:             metric,
			RelevanceThreshold: cfg.relevance,
			AccuracyThreshold:  cfg.accuracy,
			Temperature:        cfg.temp,
		},
		Logger: logger,
	})

	ans, err := svc.Run(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	fmt.Println()
	fmt.Printf("context quality: %.3f", ans.ContextQuality)
	if ans.FactCheckScore != nil {
		fmt.Printf("  fact check: %.3f", *ans.FactCheckScore)
	}
	if ans.Corrected {
		fmt.Print("  (corrected)")
	}
	fmt.Println()
	for i, src := range ans.Sources {
		fmt.Printf("[%d] %s (score %.3f", i+1, src.ID, src.Score)
		if src.Page != nil {
			fmt.Printf(", page %v", src.Page)
		}
		if src.Timestamp != nil {
			fmt.Printf(", at %v", src.Timestamp)
		}
		fmt.Println(")")
	}
	return nil
}
