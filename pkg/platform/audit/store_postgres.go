package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "attest/pkg/platform/tx"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Events land in the outbox table and are published to Kafka by the relay
// worker; Kafka is the downstream source of truth for audit consumers.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	TenantID  string `json:"tenant_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Source    string `json:"source,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	eventID := uuid.New()
	payload, err := json.Marshal(outboxPayload{
		ID:        eventID.String(),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		TenantID:  event.TenantID,
		Subject:   event.Subject,
		Action:    string(event.Action),
		Source:    event.Source,
		Detail:    event.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx,
		`INSERT INTO audit_outbox (id, payload) VALUES ($1, $2)`,
		eventID, payload)
	if err != nil {
		return fmt.Errorf("append audit outbox: %w", err)
	}
	return nil
}

// PendingBatch returns up to limit unpublished events, oldest first.
func (s *PostgresStore) PendingBatch(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM audit_outbox
		 WHERE published_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var r OutboxRow
		if err := rows.Scan(&r.ID, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkPublished stamps outbox rows after a successful Kafka produce.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = now() WHERE id = ANY($1)`,
		uuidArray(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// OutboxRow is one unpublished audit event.
type OutboxRow struct {
	ID      uuid.UUID
	Payload []byte
}

func uuidArray(ids []uuid.UUID) any {
	// lib/pq understands a postgres array literal for uuid[].
	b := make([]byte, 0, len(ids)*38+2)
	b = append(b, '{')
	for i, u := range ids {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, u.String()...)
	}
	b = append(b, '}')
	return string(b)
}
