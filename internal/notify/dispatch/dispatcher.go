package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attest/internal/notify"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Dispatcher drains the delivery queue with a small worker pool. One job's
// failure never blocks siblings; transient failures are rescheduled with
// exponential backoff up to MaxAttempts, then marked permanently failed on
// both the job and the originating notification.
type Dispatcher struct {
	queue         Queue
	notifications notify.Store
	senders       SenderRegistry
	signer        *LinkSigner
	workers       int
	pollInterval  time.Duration
	maxAttempts   int
	limiter       *sendLimiter
	auditor       *audit.Publisher
	logger        *slog.Logger
}

// Config carries dispatcher tunables.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	MaxAttempts    int
	SendsPerMinute int
}

func NewDispatcher(queue Queue, notifications notify.Store, senders SenderRegistry, signer *LinkSigner, cfg Config, auditor *audit.Publisher, logger *slog.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	var limiter *sendLimiter
	if cfg.SendsPerMinute > 0 {
		limiter = newSendLimiter(cfg.SendsPerMinute, time.Minute)
	}
	return &Dispatcher{
		queue:         queue,
		notifications: notifications,
		senders:       senders,
		signer:        signer,
		workers:       workers,
		pollInterval:  poll,
		maxAttempts:   maxAttempts,
		limiter:       limiter,
		auditor:       auditor,
		logger:        logger,
	}
}

// Run starts the poll loop and worker pool, blocking until the context is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	jobs := make(chan Job, d.workers)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				d.process(ctx, job)
			}
		}()
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			d.drain(ctx, jobs)
		}
	}
}

// drain claims every due job and hands them to the workers.
func (d *Dispatcher) drain(ctx context.Context, jobs chan<- Job) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, found, err := d.queue.ClaimNext(ctx)
		if err != nil {
			if d.logger != nil {
				d.logger.ErrorContext(ctx, "claim delivery job failed", "error", err)
			}
			return
		}
		if !found {
			return
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOne claims and processes a single job synchronously. Used by tests
// and by operators forcing a drain.
func (d *Dispatcher) ProcessOne(ctx context.Context) (bool, error) {
	job, found, err := d.queue.ClaimNext(ctx)
	if err != nil || !found {
		return false, err
	}
	d.process(ctx, job)
	return true, nil
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	if d.limiter != nil {
		d.limiter.wait(ctx)
	}

	n, err := d.notifications.Get(ctx, job.NotificationID)
	if err != nil {
		// Nothing to deliver without the record; a missing notification is
		// permanent.
		d.fail(ctx, job, notify.Notification{}, fmt.Errorf("load notification: %w", err))
		return
	}

	sender, ok := d.senders[n.Channel]
	if !ok {
		d.fail(ctx, job, n, fmt.Errorf("%w: no sender for channel %q", sentinel.ErrDelivery, n.Channel))
		return
	}

	msg := RenderMessage(n, d.documentLink(ctx, n))
	providerID, err := sender.Send(ctx, n, msg)
	if err != nil {
		d.retryOrFail(ctx, job, n, err)
		return
	}

	if err := d.queue.MarkSent(ctx, job.ID); err != nil && d.logger != nil {
		d.logger.ErrorContext(ctx, "mark job sent failed", "job_id", job.ID.String(), "error", err)
	}
	if err := d.notifications.MarkSent(ctx, n.ID, providerID); err != nil && d.logger != nil {
		d.logger.ErrorContext(ctx, "mark notification sent failed", "notification_id", n.ID.String(), "error", err)
	}
}

func (d *Dispatcher) documentLink(ctx context.Context, n notify.Notification) string {
	if d.signer == nil || n.DocumentID.IsNil() {
		return ""
	}
	link, err := d.signer.DocumentLink(n.TenantID, n.DocumentID, requestcontext.Now(ctx))
	if err != nil {
		if d.logger != nil {
			d.logger.WarnContext(ctx, "document link signing failed", "error", err)
		}
		return ""
	}
	return link
}

func (d *Dispatcher) retryOrFail(ctx context.Context, job Job, n notify.Notification, sendErr error) {
	if job.Attempts >= d.maxAttempts {
		d.fail(ctx, job, n, sendErr)
		return
	}
	backoff := backoffFor(job.Attempts)
	if err := d.queue.Reschedule(ctx, job.ID, time.Now().Add(backoff), sendErr.Error()); err != nil && d.logger != nil {
		d.logger.ErrorContext(ctx, "reschedule delivery job failed", "job_id", job.ID.String(), "error", err)
	}
	if d.logger != nil {
		d.logger.WarnContext(ctx, "delivery failed, will retry",
			"job_id", job.ID.String(),
			"attempt", job.Attempts,
			"backoff", backoff.String(),
			"error", sendErr,
		)
	}
}

func (d *Dispatcher) fail(ctx context.Context, job Job, n notify.Notification, sendErr error) {
	if err := d.queue.MarkFailed(ctx, job.ID, sendErr.Error()); err != nil && d.logger != nil {
		d.logger.ErrorContext(ctx, "mark job failed errored", "job_id", job.ID.String(), "error", err)
	}
	if !n.ID.IsNil() {
		if err := d.notifications.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil && d.logger != nil {
			d.logger.ErrorContext(ctx, "mark notification failed errored", "notification_id", n.ID.String(), "error", err)
		}
	}
	d.auditor.Emit(ctx, audit.Event{
		TenantID: n.TenantID.String(),
		Subject:  n.ID.String(),
		Action:   audit.ActionDeliveryFailed,
		Detail:   sendErr.Error(),
	})
	if d.logger != nil {
		d.logger.ErrorContext(ctx, "delivery permanently failed",
			"job_id", job.ID.String(),
			"notification_id", n.ID.String(),
			"error", sendErr,
		)
	}
}

// backoffFor doubles per attempt: 30s, 1m, 2m, 4m...
func backoffFor(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return d
}

// sendLimiter caps deliveries per window. Workers block on wait until a
// slot opens or the context is cancelled.
type sendLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
}

func newSendLimiter(limit int, window time.Duration) *sendLimiter {
	return &sendLimiter{limit: limit, window: window}
}

func (l *sendLimiter) wait(ctx context.Context) {
	for {
		if l.tryAcquire() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (l *sendLimiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept
	if len(l.timestamps) >= l.limit {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}
