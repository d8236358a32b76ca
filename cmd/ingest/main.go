// Command ingest consumes documents from NATS and runs them through the
// ingestion pipeline into the vector store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/VeritasAI/veritas-engine/engine/ingest"
	"github.com/VeritasAI/veritas-engine/engine/semantic"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
	"github.com/VeritasAI/veritas-engine/pkg/ollama"
)

var met = metrics.New()

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("model", "nomic-embed-text", "embedding model")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "veritas", "Qdrant collection name")
		metricName  = flag.String("metric", "cosine", "collection distance metric")
		vectorDims  = flag.Int("dims", 768, "embedding dimension")
		metricsPort = flag.Int("metrics-port", 9091, "metrics HTTP port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.CollectRuntime("veritas_ingest", 15*time.Second)
	met.ServeAsync(*metricsPort)

	metric, err := semantic.ParseMetric(*metricName)
	if err != nil {
		log.Error("bad metric", "error", err)
		os.Exit(1)
	}

	qs, err := semantic.NewQdrant(*qdrantAddr, *collection, metric)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer qs.Close()
	if err := qs.EnsureCollection(ctx, *vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *vectorDims)

	embedder := ollama.New(*ollamaURL, *embedModel, "")

	nc, err := nats.Connect(*natsURL, nats.Name("veritas-ingest"))
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	sub, err := ingest.StartConsumer(nc, ingest.Deps{
		Embedder: embedder,
		Store:    ingest.NewQdrantSink(qs),
		Metrics:  met,
		Logger:   log,
	})
	if err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("ingest worker running", "subject", ingest.Subject)
	<-ctx.Done()
	log.Info("shutting down")
}
