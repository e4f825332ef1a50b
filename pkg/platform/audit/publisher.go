package audit

import (
	"context"
	"log/slog"
	"time"
)

// Store persists audit events. Implementations: in-memory (tests) and the
// postgres outbox.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher writes audit events through a Store. It is append-only; failures
// are logged and swallowed because the engine is a best-effort audit
// emitter, not the audit store's owner.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Emit records an event. Nil publishers and nil stores are tolerated so
// components can run without audit wired.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.store == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"tenant_id", event.TenantID,
			"error", err,
		)
	}
}
