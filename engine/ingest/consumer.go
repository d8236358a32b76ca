package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/VeritasAI/veritas-engine/pkg/metrics"
)

const retryHeader = "X-Retry-Count"

// dlqMessage is published to the DLQ after MaxRetries failures.
type dlqMessage struct {
	Document domain.Document `json:"document"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs each document
// through the pipeline. Failed documents are republished with an incremented
// retry count and land in the DLQ after MaxRetries.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		var doc domain.Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			countIngest(deps.Metrics, "malformed")
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		ctx := context.Background()
		result := pipeline(ctx, doc)
		if result.IsOk() {
			docID, _ := result.Unwrap()
			log.Info("ingest: stored", "doc_id", docID)
			countIngest(deps.Metrics, "stored")
			ack(msg)
			return
		}

		_, pipeErr := result.Unwrap()
		retries++
		log.Error("ingest: pipeline failed", "doc_id", doc.ID, "retry", retries, "error", pipeErr)

		if retries >= MaxRetries {
			dlq := dlqMessage{Document: doc, Error: pipeErr.Error(), Retries: retries}
			data, _ := json.Marshal(dlq)
			if err := nc.Publish(DLQSubject, data); err != nil {
				log.Error("ingest: DLQ publish failed", "error", err)
			}
			countIngest(deps.Metrics, "dead_lettered")
		} else {
			retry := nats.NewMsg(Subject)
			retry.Data = msg.Data
			retry.Header = nats.Header{}
			retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
			if err := nc.PublishMsg(retry); err != nil {
				log.Error("ingest: retry publish failed", "error", err)
			}
			countIngest(deps.Metrics, "retried")
		}
		ack(msg)
	})
}

func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}

func countIngest(reg *metrics.Registry, outcome string) {
	if reg == nil {
		return
	}
	reg.Counter(metrics.Labeled("ingest_documents_total", "outcome", outcome), "Documents by ingest outcome").Inc()
}
