// Package relay drains the audit outbox into Kafka. It runs as a background
// worker beside the engine; a stalled broker delays audit delivery but never
// blocks engine writes, which only touch the outbox table.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"attest/pkg/platform/audit"
)

const defaultBatchSize = 100

// Relay polls the outbox and produces unpublished events to Kafka.
type Relay struct {
	store    *audit.PostgresStore
	client   *kgo.Client
	topic    string
	interval time.Duration
	logger   *slog.Logger
}

// New constructs a relay. The kgo client is passed in so tests and main own
// its lifecycle.
func New(store *audit.PostgresStore, client *kgo.Client, topic string, interval time.Duration, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{store: store, client: client, topic: topic, interval: interval, logger: logger}
}

// Run drains the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "audit relay pass failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	rows, err := r.store.PendingBatch(ctx, defaultBatchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(row.ID.String()),
			Value: row.Payload,
		})
	}

	// ProduceSync keeps ordering simple; the batch is small and the relay
	// is not on any hot path.
	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return r.store.MarkPublished(ctx, ids)
}
