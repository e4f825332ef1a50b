package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/catalog"
	"attest/internal/records"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	catalog  *catalog.MemoryStore
	records  *records.MemoryStore
	scores   *MemoryScoreStore
	auditlog *audit.MemoryStore
	service  *Service

	now      time.Time
	ctx      context.Context
	tenantID id.TenantID
	client   records.Client
	docCat   id.CategoryID
	filCat   id.CategoryID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.catalog = catalog.NewMemoryStore()
	s.records = records.NewMemoryStore()
	s.scores = NewMemoryScoreStore()
	s.auditlog = audit.NewMemoryStore()

	s.service = NewService(
		s.catalog,
		s.records.Clients(),
		s.records,
		s.records.Filings(),
		s.scores,
		NewEvaluator(30, nil),
		WithAuditor(audit.NewPublisher(s.auditlog, nil)),
	)

	s.now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.tenantID = id.NewTenantID()
	s.docCat = id.NewCategoryID()
	s.filCat = id.NewCategoryID()
	s.catalog.AddTenant(s.tenantID)
	s.records.AddTenant(records.Tenant{ID: s.tenantID, Name: "Acme", Status: "active"})

	s.client = records.Client{
		ID:       id.NewClientID(),
		TenantID: s.tenantID,
		Name:     "Globex",
		Type:     "corporation",
		Sector:   "finance",
	}
	s.records.AddClient(s.client)
}

func (s *ServiceSuite) addRuleSet(rules ...catalog.Rule) {
	s.catalog.AddRuleSet(catalog.RuleSet{
		ID:       id.NewRuleSetID(),
		TenantID: s.tenantID,
		Name:     "baseline",
		Active:   true,
		Rules:    rules,
	})
}

func (s *ServiceSuite) TestEvaluateClient() {
	s.Run("persists the aggregated score", func() {
		docRule, err := catalog.NewRule(id.NewRuleSetID(), catalog.RuleDocumentRequired, &s.docCat, 0.5, "license")
		s.Require().NoError(err)
		filRule, err := catalog.NewRule(id.NewRuleSetID(), catalog.RuleFilingRequired, &s.filCat, 0.5, "annual report")
		s.Require().NoError(err)
		s.addRuleSet(docRule, filRule)

		s.records.AddDocument(records.Document{
			ID:         id.NewDocumentID(),
			TenantID:   s.tenantID,
			ClientID:   s.client.ID,
			CategoryID: s.docCat,
			Status:     records.DocumentValid,
		})

		score, err := s.service.EvaluateClient(s.ctx, s.client)
		s.Require().NoError(err)
		s.Equal(50.0, score.Score)
		s.Equal(LevelAmber, score.Level)
		s.Equal(1, score.MissingCount)
		s.Equal(s.now, score.CalculatedAt)

		persisted, err := s.service.ScoreFor(s.ctx, s.tenantID, s.client.ID)
		s.Require().NoError(err)
		s.Equal(score, persisted)
	})

	s.Run("re-evaluation fully replaces the prior row", func() {
		s.records.AddFiling(records.Filing{
			ID:         id.NewFilingID(),
			TenantID:   s.tenantID,
			ClientID:   s.client.ID,
			CategoryID: s.filCat,
			Status:     records.FilingSubmitted,
		})

		score, err := s.service.EvaluateClient(s.ctx, s.client)
		s.Require().NoError(err)
		s.Equal(100.0, score.Score)
		s.Equal(LevelGreen, score.Level)
		s.Equal(1, s.scores.Len())
	})

	s.Run("rule sets scoped to other client types are ignored", func() {
		s.catalog.AddRuleSet(catalog.RuleSet{
			ID:          id.NewRuleSetID(),
			TenantID:    s.tenantID,
			ClientTypes: []string{"partnership"},
			Active:      true,
			Rules: []catalog.Rule{
				{ID: id.NewRuleID(), Kind: catalog.RuleDocumentRequired, TargetID: &s.docCat, Weight: 1},
			},
		})

		score, err := s.service.EvaluateClient(s.ctx, s.client)
		s.Require().NoError(err)
		// Still 100: the partnership-only set does not apply to a corporation.
		s.Equal(100.0, score.Score)
	})

	s.Run("emits a score replaced audit event", func() {
		_, err := s.service.EvaluateClient(s.ctx, s.client)
		s.Require().NoError(err)

		events := s.auditlog.Events()
		s.Require().NotEmpty(events)
		last := events[len(events)-1]
		s.Equal(audit.ActionScoreReplaced, last.Action)
		s.Equal(s.tenantID.String(), last.TenantID)
		s.Equal(s.client.ID.String(), last.Subject)
	})

	s.Run("unknown tenant fails evaluation", func() {
		orphan := records.Client{ID: id.NewClientID(), TenantID: id.NewTenantID()}
		_, err := s.service.EvaluateClient(s.ctx, orphan)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ServiceSuite) TestBundleFulfillment() {
	bundleItem := catalog.BundleItem{
		ID:             id.NewBundleItemID(),
		DocumentTypeID: &s.docCat,
		Required:       true,
		Description:    "certificate of incorporation",
	}
	badItem := catalog.BundleItem{ID: id.NewBundleItemID(), Required: true}
	s.catalog.AddBundle(catalog.RequirementBundle{
		ID:        id.NewBundleID(),
		TenantID:  s.tenantID,
		Name:      "KYB onboarding",
		Authority: "SEC",
		Items:     []catalog.BundleItem{bundleItem, badItem},
	})

	s.Run("reports satisfaction against live facts", func() {
		details, err := s.service.BundleFulfillment(s.ctx, s.tenantID, s.client.ID)
		s.Require().NoError(err)
		s.Require().Len(details, 1)
		s.Require().Len(details[0].Items, 2)
		s.False(details[0].Items[0].Satisfied)

		s.records.AddDocument(records.Document{
			ID:         id.NewDocumentID(),
			TenantID:   s.tenantID,
			ClientID:   s.client.ID,
			CategoryID: s.docCat,
			Status:     records.DocumentValid,
		})

		details, err = s.service.BundleFulfillment(s.ctx, s.tenantID, s.client.ID)
		s.Require().NoError(err)
		s.True(details[0].Items[0].Satisfied)
		s.NotNil(details[0].Items[0].MatchedDocument)
	})

	s.Run("malformed items are flagged invalid rather than failing the view", func() {
		details, err := s.service.BundleFulfillment(s.ctx, s.tenantID, s.client.ID)
		s.Require().NoError(err)
		s.True(details[0].Items[1].Invalid)
	})

	s.Run("unknown client returns not found", func() {
		_, err := s.service.BundleFulfillment(s.ctx, s.tenantID, id.NewClientID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
