package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler fires global refresh runs on a fixed interval. Manual triggers
// go through the same Runner entrypoint and share its rate limiter.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(runner *Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// Run blocks until the context is cancelled, triggering a full sweep every
// interval. A failed run is logged and the next tick tries again.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.runner.Trigger(ctx, TriggerRequest{Source: "schedule"}); err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "scheduled refresh run failed", "error", err)
				}
			}
		}
	}
}
