package scoring

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"attest/internal/catalog"
	"attest/internal/records"
	"attest/internal/scoring/metrics"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/tx"
	"attest/pkg/requestcontext"
)

// Service evaluates a single client end to end: pull facts, run the
// evaluator over applicable rule sets and bundles, aggregate, persist. The
// persisted write fully replaces the prior score row.
type Service struct {
	catalog    catalog.Store
	clients    records.ClientStore
	documents  records.DocumentStore
	filings    records.FilingStore
	scores     ScoreStore
	evaluator  *Evaluator
	thresholds Thresholds
	db         *sql.DB
	auditor    *audit.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithThresholds overrides the default level boundaries.
func WithThresholds(t Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

// WithAuditor wires audit emission. Without WithDB it is best-effort; with
// WithDB the outbox row commits atomically with the score replace.
func WithAuditor(a *audit.Publisher) Option {
	return func(s *Service) { s.auditor = a }
}

// WithDB makes the score replace and its audit outbox row commit in one
// transaction.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithMetrics wires prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger wires a logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(
	cat catalog.Store,
	clients records.ClientStore,
	documents records.DocumentStore,
	filings records.FilingStore,
	scores ScoreStore,
	evaluator *Evaluator,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:    cat,
		clients:    clients,
		documents:  documents,
		filings:    filings,
		scores:     scores,
		evaluator:  evaluator,
		thresholds: DefaultThresholds,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateClient computes and persists the client's compliance score.
func (s *Service) EvaluateClient(ctx context.Context, client records.Client) (ComplianceScore, error) {
	start := time.Now()

	facts, err := s.loadFacts(ctx, client)
	if err != nil {
		return ComplianceScore{}, err
	}

	ruleResults, err := s.evaluateRules(ctx, client, facts)
	if err != nil {
		return ComplianceScore{}, err
	}
	itemResults, err := s.evaluateBundles(ctx, client, facts)
	if err != nil {
		return ComplianceScore{}, err
	}

	score := Aggregate(client.TenantID, client.ID, ruleResults, itemResults, facts.Filings,
		s.thresholds, requestcontext.Now(ctx))

	if err := s.persistScore(ctx, client, score); err != nil {
		return ComplianceScore{}, fmt.Errorf("persist score for client %s: %w", client.ID, err)
	}

	s.metrics.IncrementLevel(string(score.Level))
	s.metrics.ObserveEvaluateLatency(time.Since(start))

	return score, nil
}

// persistScore replaces the score row and emits the audit event. With a db
// wired, both writes go through one transaction so the outbox row never
// drifts from the score it describes.
func (s *Service) persistScore(ctx context.Context, client records.Client, score ComplianceScore) error {
	write := func(ctx context.Context) error {
		if err := s.scores.Replace(ctx, score); err != nil {
			return err
		}
		s.auditor.Emit(ctx, audit.Event{
			TenantID: client.TenantID.String(),
			Subject:  client.ID.String(),
			Action:   audit.ActionScoreReplaced,
			Source:   requestcontext.TriggerSource(ctx),
			Detail:   fmt.Sprintf("level=%s score=%.1f", score.Level, score.Score),
		})
		return nil
	}
	if s.db == nil {
		return write(ctx)
	}
	return tx.Run(ctx, s.db, write)
}

// ScoreFor returns the current persisted score for a client.
func (s *Service) ScoreFor(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (ComplianceScore, error) {
	return s.scores.Get(ctx, tenantID, clientID)
}

// BundleFulfillment returns per-item fulfillment detail for display. It
// re-evaluates against live facts rather than reading persisted state so the
// view never lags the records.
func (s *Service) BundleFulfillment(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]BundleDetail, error) {
	client, err := s.clients.Get(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	facts, err := s.loadFacts(ctx, client)
	if err != nil {
		return nil, err
	}

	bundles, err := s.catalog.BundlesFor(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}

	details := make([]BundleDetail, 0, len(bundles))
	for _, b := range bundles {
		detail := BundleDetail{Bundle: b}
		for _, item := range b.Items {
			res, err := s.evaluator.EvaluateItem(ctx, item, facts)
			if err != nil {
				s.logInvalidItem(ctx, b, item, err)
				detail.Items = append(detail.Items, ItemDetail{Item: item, Invalid: true})
				continue
			}
			detail.Items = append(detail.Items, ItemDetail{
				Item:            item,
				Satisfied:       res.Satisfied,
				MatchedDocument: res.MatchedDocument,
				MatchedFiling:   res.MatchedFiling,
			})
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *Service) loadFacts(ctx context.Context, client records.Client) (Facts, error) {
	docs, err := s.documents.ListByClient(ctx, client.TenantID, client.ID)
	if err != nil {
		return Facts{}, fmt.Errorf("load documents for client %s: %w", client.ID, err)
	}
	filings, err := s.filings.ListByClient(ctx, client.TenantID, client.ID)
	if err != nil {
		return Facts{}, fmt.Errorf("load filings for client %s: %w", client.ID, err)
	}
	return Facts{Documents: docs, Filings: filings}, nil
}

func (s *Service) evaluateRules(ctx context.Context, client records.Client, facts Facts) ([]RuleResult, error) {
	sets, err := s.catalog.RuleSetsFor(ctx, client.TenantID, client.Type, client.Sector)
	if err != nil {
		return nil, fmt.Errorf("load rule sets for client %s: %w", client.ID, err)
	}
	var out []RuleResult
	for _, rs := range sets {
		for _, rule := range rs.Rules {
			out = append(out, RuleResult{
				Rule:   rule,
				Result: s.evaluator.EvaluateRule(ctx, rule, facts),
			})
		}
	}
	return out, nil
}

func (s *Service) evaluateBundles(ctx context.Context, client records.Client, facts Facts) ([]ItemResult, error) {
	bundles, err := s.catalog.BundlesFor(ctx, client.TenantID, nil)
	if err != nil {
		return nil, fmt.Errorf("load bundles for client %s: %w", client.ID, err)
	}
	var out []ItemResult
	for _, b := range bundles {
		for _, item := range b.Items {
			res, err := s.evaluator.EvaluateItem(ctx, item, facts)
			if err != nil {
				s.logInvalidItem(ctx, b, item, err)
			}
			out = append(out, ItemResult{
				Item:      item,
				Authority: b.Authority,
				Result:    res,
				Err:       err,
			})
		}
	}
	return out, nil
}

func (s *Service) logInvalidItem(ctx context.Context, b catalog.RequirementBundle, item catalog.BundleItem, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, "skipping malformed bundle item",
			"bundle_id", b.ID.String(),
			"item_id", item.ID.String(),
			"error", err,
		)
	}
}
