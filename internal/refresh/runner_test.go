package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/catalog"
	"attest/internal/records"
	"attest/internal/scoring"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// =============================================================================
// Runner Test Suite
// =============================================================================
// The isolation guarantee (one tenant's broken configuration never aborts the
// sweep) is the contract that matters most here, so the fixtures deliberately
// mix healthy and broken tenants in one run.

type RunnerSuite struct {
	suite.Suite
	catalog *catalog.MemoryStore
	records *records.MemoryStore
	scores  *scoring.MemoryScoreStore
	runner  *Runner
	ctx     context.Context
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.catalog = catalog.NewMemoryStore()
	s.records = records.NewMemoryStore()
	s.scores = scoring.NewMemoryScoreStore()

	svc := scoring.NewService(
		s.catalog,
		s.records.Clients(),
		s.records,
		s.records.Filings(),
		s.scores,
		scoring.NewEvaluator(30, nil),
	)
	s.runner = NewRunner(s.records, s.records.Clients(), svc)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
}

// addTenant registers a tenant with n clients. When healthy is false the
// tenant is left out of the catalog, so every client evaluation fails with
// not found.
func (s *RunnerSuite) addTenant(name string, clients int, healthy bool) id.TenantID {
	tenantID := id.NewTenantID()
	s.records.AddTenant(records.Tenant{ID: tenantID, Name: name, Status: "active"})
	if healthy {
		s.catalog.AddTenant(tenantID)
	}
	for i := 0; i < clients; i++ {
		s.records.AddClient(records.Client{ID: id.NewClientID(), TenantID: tenantID, Type: "corporation"})
	}
	return tenantID
}

func (s *RunnerSuite) TestTrigger() {
	s.Run("sweeps every active tenant", func() {
		s.addTenant("alpha", 2, true)
		s.addTenant("beta", 3, true)
		s.records.AddTenant(records.Tenant{ID: id.NewTenantID(), Name: "dormant", Status: "suspended"})

		result, err := s.runner.Trigger(s.ctx, TriggerRequest{Source: "manual"})
		s.Require().NoError(err)
		s.Equal(StatusCompleted, result.Status)
		s.Equal(2, result.TenantsProcessed)
		s.Equal(5, result.ClientsUpdated)
		s.Empty(result.Errors)
		s.Equal(5, s.scores.Len())
	})

	s.Run("scopes to one tenant when requested", func() {
		target := s.addTenant("gamma", 1, true)
		s.addTenant("delta", 4, true)

		result, err := s.runner.Trigger(s.ctx, TriggerRequest{TenantID: &target, Source: "manual"})
		s.Require().NoError(err)
		s.Equal(1, result.TenantsProcessed)
		s.Equal(1, result.ClientsUpdated)
	})

	s.Run("unknown tenant id is fatal", func() {
		missing := id.NewTenantID()
		_, err := s.runner.Trigger(s.ctx, TriggerRequest{TenantID: &missing})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("progress is cleared after the run", func() {
		s.addTenant("epsilon", 1, true)
		_, err := s.runner.Trigger(s.ctx, TriggerRequest{Source: "manual"})
		s.Require().NoError(err)
		s.Equal(Progress{}, s.runner.Progress())
	})
}

// gatedClients blocks ListActive for one tenant until released, letting a
// test hold a run mid-flight.
type gatedClients struct {
	records.ClientStore
	tenantID id.TenantID
	entered  chan struct{}
	release  chan struct{}
}

func (g *gatedClients) ListActive(ctx context.Context, tenantID id.TenantID) ([]records.Client, error) {
	if tenantID == g.tenantID {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.ClientStore.ListActive(ctx, tenantID)
}

func (s *RunnerSuite) TestOverlappingRunsKeepSeparateProgress() {
	slow := s.addTenant("slow", 1, true)
	fast := s.addTenant("fast", 1, true)

	gate := &gatedClients{
		ClientStore: s.records.Clients(),
		tenantID:    slow,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := scoring.NewService(
		s.catalog,
		s.records.Clients(),
		s.records,
		s.records.Filings(),
		s.scores,
		scoring.NewEvaluator(30, nil),
	)
	runner := NewRunner(s.records, gate, svc, WithConcurrency(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := runner.Trigger(s.ctx, TriggerRequest{Source: "schedule"})
		s.NoError(err)
	}()
	<-gate.entered

	// A scoped manual run starts and finishes while the sweep is held.
	result, err := runner.Trigger(s.ctx, TriggerRequest{TenantID: &fast, Source: "manual"})
	s.Require().NoError(err)
	s.Equal(StatusCompleted, result.Status)

	// The finished scoped run must not have wiped the sweep's progress.
	p := runner.Progress()
	s.True(p.Running)
	s.Equal(1, p.ActiveRuns)
	s.Equal(2, p.TenantsTotal)

	close(gate.release)
	<-done
	s.Equal(Progress{}, runner.Progress())
}

func (s *RunnerSuite) TestTenantIsolation() {
	healthyA := s.addTenant("healthy-a", 2, true)
	broken := s.addTenant("broken", 2, false)
	healthyB := s.addTenant("healthy-b", 1, true)

	result, err := s.runner.Trigger(s.ctx, TriggerRequest{Source: "schedule"})
	s.Require().NoError(err)

	s.Equal(StatusCompletedWithErrors, result.Status)
	s.Equal(3, result.TenantsProcessed)
	s.Equal(3, result.ClientsUpdated)

	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors, broken)
	s.NotContains(result.Errors, healthyA)
	s.NotContains(result.Errors, healthyB)

	// Healthy tenants' scores landed despite the broken sibling.
	s.Equal(3, s.scores.Len())
}

func (s *RunnerSuite) TestConcurrentTenants() {
	for i := 0; i < 6; i++ {
		s.addTenant("tenant", 2, true)
	}
	runner := NewRunner(s.records, s.records.Clients(), scoring.NewService(
		s.catalog, s.records.Clients(), s.records, s.records.Filings(), s.scores,
		scoring.NewEvaluator(30, nil),
	), WithConcurrency(4))

	result, err := runner.Trigger(s.ctx, TriggerRequest{Source: "manual"})
	s.Require().NoError(err)
	s.Equal(6, result.TenantsProcessed)
	s.Equal(12, result.ClientsUpdated)
	s.Empty(result.Errors)
}

func (s *RunnerSuite) TestRateLimit() {
	s.addTenant("limited", 1, true)
	runner := NewRunner(s.records, s.records.Clients(), scoring.NewService(
		s.catalog, s.records.Clients(), s.records, s.records.Filings(), s.scores,
		scoring.NewEvaluator(30, nil),
	), WithLimiter(NewMemoryRunLimiter(1, time.Minute)))

	_, err := runner.Trigger(s.ctx, TriggerRequest{Source: "manual"})
	s.Require().NoError(err)

	_, err = runner.Trigger(s.ctx, TriggerRequest{Source: "manual"})
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func TestMemoryRunLimiter(t *testing.T) {
	limiter := NewMemoryRunLimiter(2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx)
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := limiter.Allow(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("third run inside the window should be denied")
	}
}
