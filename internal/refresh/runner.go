package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"attest/internal/records"
	"attest/internal/refresh/metrics"
	"attest/internal/scoring"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// Runner executes compliance refresh runs. Tenants are fanned out with
// bounded concurrency; each tenant's clients are processed serially by one
// worker, which also guarantees no two evaluations of the same client run
// concurrently within a run.
type Runner struct {
	tenants     records.TenantStore
	clients     records.ClientStore
	scoring     *scoring.Service
	limiter     RunLimiter
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     *audit.Publisher
	tracer      trace.Tracer

	mu   sync.Mutex
	runs map[id.RunID]*Progress
}

// Option configures the Runner.
type Option func(*Runner)

// WithLimiter caps run starts per window.
func WithLimiter(l RunLimiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithConcurrency bounds how many tenants are processed in parallel. The
// default of 1 processes tenants serially to bound database load.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger wires a logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics wires prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithAuditor wires best-effort audit emission.
func WithAuditor(a *audit.Publisher) Option {
	return func(r *Runner) { r.auditor = a }
}

func NewRunner(tenants records.TenantStore, clients records.ClientStore, scoringSvc *scoring.Service, opts ...Option) *Runner {
	r := &Runner{
		tenants:     tenants,
		clients:     clients,
		scoring:     scoringSvc,
		concurrency: 1,
		tracer:      otel.Tracer("attest/refresh"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger starts a run and blocks until it finishes. Only a failure to
// enumerate tenants is fatal; everything below that boundary folds into the
// result's error list. Two runs may safely overlap over the same tenant's
// data: each client write is a full replace, last write wins.
func (r *Runner) Trigger(ctx context.Context, req TriggerRequest) (RunResult, error) {
	if r.limiter != nil {
		allowed, err := r.limiter.Allow(ctx)
		if err != nil {
			return RunResult{}, fmt.Errorf("run limiter: %w", err)
		}
		if !allowed {
			return RunResult{}, fmt.Errorf("%w: refresh run rate limit exceeded", sentinel.ErrUnavailable)
		}
	}

	ctx = requestcontext.WithTriggerSource(ctx, req.Source)
	ctx, span := r.tracer.Start(ctx, "refresh.run")
	defer span.End()

	result := RunResult{
		RunID:     id.NewRunID(),
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Errors:    make(map[id.TenantID]string),
	}

	tenants, err := r.resolveTenants(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	r.startProgress(result.RunID, len(tenants))
	defer r.finishProgress(result.RunID)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, tenant := range tenants {
		g.Go(func() error {
			updated, err := r.processTenant(gctx, tenant)
			mu.Lock()
			result.TenantsProcessed++
			result.ClientsUpdated += updated
			if err != nil {
				result.Errors[tenant.ID] = err.Error()
			}
			mu.Unlock()
			r.incrementProgress(result.RunID)
			// Tenant failures are recorded, never propagated: returning an
			// error here would cancel sibling tenants.
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(result.StartedAt)
	result.Status = StatusCompleted
	if len(result.Errors) > 0 {
		result.Status = StatusCompletedWithErrors
	}
	span.SetAttributes(
		attribute.Int("tenants.processed", result.TenantsProcessed),
		attribute.Int("clients.updated", result.ClientsUpdated),
		attribute.Int("tenants.failed", len(result.Errors)),
	)

	r.metrics.IncrementRun(string(result.Status))
	r.metrics.AddTenantErrors(len(result.Errors))
	r.metrics.AddClientsUpdated(result.ClientsUpdated)
	r.metrics.ObserveRunDuration(result.Duration)
	r.auditor.Emit(ctx, audit.Event{
		Action: audit.ActionRunCompleted,
		Source: req.Source,
		Detail: fmt.Sprintf("run=%s status=%s tenants=%d clients=%d errors=%d",
			result.RunID, result.Status, result.TenantsProcessed, result.ClientsUpdated, len(result.Errors)),
	})
	if r.logger != nil {
		r.logger.InfoContext(ctx, "refresh run finished",
			"run_id", result.RunID.String(),
			"status", string(result.Status),
			"tenants", result.TenantsProcessed,
			"clients_updated", result.ClientsUpdated,
			"errors", len(result.Errors),
			"duration", result.Duration.String(),
		)
	}
	return result, nil
}

// Progress reports the advancement of all in-flight runs. Progress is
// tracked per run so a scoped manual trigger overlapping the scheduled
// sweep neither clobbers the sweep's counts nor wipes them when it
// finishes first.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var agg Progress
	for _, p := range r.runs {
		agg.Running = true
		agg.ActiveRuns++
		agg.TenantsProcessed += p.TenantsProcessed
		agg.TenantsTotal += p.TenantsTotal
	}
	return agg
}

func (r *Runner) resolveTenants(ctx context.Context, req TriggerRequest) ([]records.Tenant, error) {
	if req.TenantID != nil {
		tenant, err := r.tenants.Get(ctx, *req.TenantID)
		if err != nil {
			return nil, fmt.Errorf("resolve tenant %s: %w", req.TenantID, err)
		}
		return []records.Tenant{tenant}, nil
	}
	tenants, err := r.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate tenants: %w", err)
	}
	return tenants, nil
}

// processTenant evaluates every active client of one tenant. Per-client
// errors are collected and joined rather than aborting sibling clients; a
// panic inside evaluation is converted to an error so corrupt tenant data
// cannot take down the run.
func (r *Runner) processTenant(ctx context.Context, tenant records.Tenant) (updated int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tenant %s: panic during evaluation: %v", tenant.ID, rec)
		}
	}()

	clients, err := r.clients.ListActive(ctx, tenant.ID)
	if err != nil {
		return 0, fmt.Errorf("list clients: %w", err)
	}

	var clientErrs []error
	for _, client := range clients {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if _, err := r.scoring.EvaluateClient(ctx, client); err != nil {
			clientErrs = append(clientErrs, fmt.Errorf("client %s: %w", client.ID, err))
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "client evaluation failed",
					"tenant_id", tenant.ID.String(),
					"client_id", client.ID.String(),
					"error", err,
				)
			}
			continue
		}
		updated++
	}
	return updated, errors.Join(clientErrs...)
}

func (r *Runner) startProgress(runID id.RunID, total int) {
	r.mu.Lock()
	if r.runs == nil {
		r.runs = make(map[id.RunID]*Progress)
	}
	r.runs[runID] = &Progress{Running: true, TenantsTotal: total}
	r.mu.Unlock()
}

func (r *Runner) finishProgress(runID id.RunID) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

func (r *Runner) incrementProgress(runID id.RunID) {
	r.mu.Lock()
	if p, ok := r.runs[runID]; ok {
		p.TenantsProcessed++
	}
	r.mu.Unlock()
}
