// Package dispatch consumes queued notification jobs and performs the
// actual sends. Jobs live in a postgres table claimed with FOR UPDATE SKIP
// LOCKED so multiple workers never double-deliver.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "attest/pkg/domain"
)

// Job is one queued delivery attempt.
type Job struct {
	ID             uuid.UUID
	NotificationID id.NotificationID
	Attempts       int
}

// Queue supports enqueueing and claiming delivery jobs. Enqueue satisfies
// notify.DeliveryQueue.
type Queue interface {
	Enqueue(ctx context.Context, notificationID id.NotificationID) error
	// ClaimNext returns the next due job and marks it running, or found=false
	// when the queue is empty.
	ClaimNext(ctx context.Context) (job Job, found bool, err error)
	MarkSent(ctx context.Context, jobID uuid.UUID) error
	// Reschedule returns a failed job to the queue for a later attempt.
	Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time, reason string) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error
}

// PostgresQueue implements Queue on a pgx pool.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

func NewPostgresQueue(pool *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{pool: pool}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, notificationID id.NotificationID) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO delivery_jobs (id, notification_id) VALUES ($1, $2)`,
		uuid.New(), uuid.UUID(notificationID))
	if err != nil {
		return fmt.Errorf("enqueue delivery job: %w", err)
	}
	return nil
}

// ClaimNext locks the next due queued job and transitions it to running,
// bumping the attempt counter in the same transaction.
func (q *PostgresQueue) ClaimNext(ctx context.Context) (job Job, found bool, err error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var nid uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id, notification_id, attempts FROM delivery_jobs
		WHERE status = 'queued' AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&job.ID, &nid, &job.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	job.NotificationID = id.NotificationID(nid)

	if _, err = tx.Exec(ctx, `
		UPDATE delivery_jobs SET status='running', attempts=attempts+1 WHERE id=$1
	`, job.ID); err != nil {
		return job, false, err
	}
	job.Attempts++
	return job, true, nil
}

func (q *PostgresQueue) MarkSent(ctx context.Context, jobID uuid.UUID) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE delivery_jobs SET status='sent', finished_at=now() WHERE id=$1`, jobID)
	return err
}

func (q *PostgresQueue) Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time, reason string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE delivery_jobs SET status='queued', next_attempt_at=$2, last_error=$3 WHERE id=$1`,
		jobID, at, reason)
	return err
}

func (q *PostgresQueue) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE delivery_jobs SET status='failed', finished_at=now(), last_error=$2 WHERE id=$1`,
		jobID, reason)
	return err
}
