package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	txcontext "attest/pkg/platform/tx"
)

// PostgresScoreStore persists scores with an upsert keyed on client id.
// Writes join a transaction carried in the context, so the service can
// commit the replace atomically with its audit outbox row.
type PostgresScoreStore struct {
	db *sql.DB
}

func NewPostgresScoreStore(db *sql.DB) *PostgresScoreStore {
	return &PostgresScoreStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresScoreStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresScoreStore) Replace(ctx context.Context, score ComplianceScore) error {
	breakdown, err := json.Marshal(score.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO compliance_scores
			(client_id, tenant_id, level, score, missing_count, expiring_count, overdue_count, breakdown, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_id) DO UPDATE SET
			level = EXCLUDED.level,
			score = EXCLUDED.score,
			missing_count = EXCLUDED.missing_count,
			expiring_count = EXCLUDED.expiring_count,
			overdue_count = EXCLUDED.overdue_count,
			breakdown = EXCLUDED.breakdown,
			calculated_at = EXCLUDED.calculated_at`,
		uuid.UUID(score.ClientID), uuid.UUID(score.TenantID), string(score.Level), score.Score,
		score.MissingCount, score.ExpiringCount, score.OverdueCount, breakdown, score.CalculatedAt)
	if err != nil {
		return fmt.Errorf("replace compliance score: %w", err)
	}
	return nil
}

func (s *PostgresScoreStore) Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (ComplianceScore, error) {
	var score ComplianceScore
	var cid, tid uuid.UUID
	var level string
	var breakdown []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, tenant_id, level, score, missing_count, expiring_count, overdue_count, breakdown, calculated_at
		FROM compliance_scores WHERE tenant_id = $1 AND client_id = $2`,
		uuid.UUID(tenantID), uuid.UUID(clientID)).
		Scan(&cid, &tid, &level, &score.Score, &score.MissingCount, &score.ExpiringCount,
			&score.OverdueCount, &breakdown, &score.CalculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ComplianceScore{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ComplianceScore{}, fmt.Errorf("get compliance score: %w", err)
	}
	score.ClientID = id.ClientID(cid)
	score.TenantID = id.TenantID(tid)
	score.Level = Level(level)
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &score.Breakdown); err != nil {
			return ComplianceScore{}, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}
	return score, nil
}
