package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// PostgresStore persists notifications. Dedup relies on the
// notifications_dedup_uniq index and an ON CONFLICT DO NOTHING insert rather
// than any find-then-create check, so concurrent sweeps cannot race a
// duplicate in.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, n Notification) (bool, error) {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal notification metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
			(id, tenant_id, recipient_id, channel, status, message, document_id, threshold_days, urgency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (document_id, threshold_days, recipient_id) DO NOTHING`,
		uuid.UUID(n.ID), uuid.UUID(n.TenantID), uuid.UUID(n.RecipientID), string(n.Channel),
		string(n.Status), n.Message, uuid.UUID(n.DocumentID), n.ThresholdDays, string(n.Urgency), metadata)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("notification rows affected: %w", err)
	}
	return inserted > 0, nil
}

func (s *PostgresStore) Get(ctx context.Context, notificationID id.NotificationID) (Notification, error) {
	var n Notification
	var nid, tid, rid, did uuid.UUID
	var channel, status, urgency string
	var metadata []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, recipient_id, channel, status, message, document_id, threshold_days, urgency, metadata, created_at, updated_at
		FROM notifications WHERE id = $1`,
		uuid.UUID(notificationID)).
		Scan(&nid, &tid, &rid, &channel, &status, &n.Message, &did, &n.ThresholdDays, &urgency, &metadata, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("get notification: %w", err)
	}
	n.ID = id.NotificationID(nid)
	n.TenantID = id.TenantID(tid)
	n.RecipientID = id.UserID(rid)
	n.DocumentID = id.DocumentID(did)
	n.Channel = Channel(channel)
	n.Status = Status(status)
	n.Urgency = Urgency(urgency)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return Notification{}, fmt.Errorf("unmarshal notification metadata: %w", err)
		}
	}
	return n, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, notificationID id.NotificationID, providerMessageID string) error {
	return s.setStatus(ctx, notificationID, StatusSent, "provider_message_id", providerMessageID)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, notificationID id.NotificationID, sendErr string) error {
	return s.setStatus(ctx, notificationID, StatusFailed, "delivery_error", sendErr)
}

func (s *PostgresStore) setStatus(ctx context.Context, notificationID id.NotificationID, status Status, metaKey, metaValue string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, metadata = metadata || jsonb_build_object($3::text, $4::text), updated_at = now()
		WHERE id = $1`,
		uuid.UUID(notificationID), string(status), metaKey, metaValue)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("notification rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
