package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	. "attest/internal/notify"
	"attest/internal/notify/dispatch"
	"attest/internal/records"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
	"attest/pkg/requestcontext"
)

// =============================================================================
// Expiry Engine Test Suite
// =============================================================================
// The at-most-once guarantee per (document, threshold, recipient) and the
// exact-day threshold match are the two behaviors that must never regress;
// both are pinned against a fixed clock here.

type EngineSuite struct {
	suite.Suite
	records  *records.MemoryStore
	store    *MemoryStore
	queue    *dispatch.MemoryQueue
	auditlog *audit.MemoryStore
	engine   *Engine

	now      time.Time
	ctx      context.Context
	tenantID id.TenantID
	clientID id.ClientID
	officer  records.User
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.records = records.NewMemoryStore()
	s.store = NewMemoryStore()
	s.queue = dispatch.NewMemoryQueue()
	s.auditlog = audit.NewMemoryStore()
	s.engine = NewEngine(
		s.records, s.records, s.records,
		s.store, s.queue,
		Config{},
		audit.NewPublisher(s.auditlog, nil),
		nil,
	)

	s.now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.tenantID = id.NewTenantID()
	s.clientID = id.NewClientID()
	s.records.AddTenant(records.Tenant{ID: s.tenantID, Name: "Acme", Status: "active"})
	s.records.AddClient(records.Client{ID: s.clientID, TenantID: s.tenantID})

	s.officer = records.User{
		ID:       id.NewUserID(),
		TenantID: s.tenantID,
		Email:    "officer@acme.example",
		Role:     "compliance_officer",
	}
	s.records.AddUser(s.officer)
}

// addExpiringDocument adds a valid document whose expiry lands exactly
// daysOut days after the pinned clock.
func (s *EngineSuite) addExpiringDocument(name string, daysOut int) records.Document {
	expiry := s.now.Add(time.Duration(daysOut) * 24 * time.Hour)
	doc := records.Document{
		ID:            id.NewDocumentID(),
		TenantID:      s.tenantID,
		ClientID:      s.clientID,
		CategoryID:    id.NewCategoryID(),
		Name:          name,
		Status:        records.DocumentValid,
		ActiveVersion: &records.DocumentVersion{ExpiryDate: &expiry},
	}
	s.records.AddDocument(doc)
	return doc
}

func (s *EngineSuite) TestSweepTenant() {
	s.Run("document at an exact threshold notifies each recipient once", func() {
		doc := s.addExpiringDocument("trading license", 7)

		created, err := s.engine.SweepTenant(s.ctx, s.tenantID)
		s.Require().NoError(err)
		s.Equal(1, created)

		all := s.store.All()
		s.Require().Len(all, 1)
		n := all[0]
		s.Equal(doc.ID, n.DocumentID)
		s.Equal(s.officer.ID, n.RecipientID)
		s.Equal(7, n.ThresholdDays)
		s.Equal(UrgencyHigh, n.Urgency)
		s.Equal(StatusPending, n.Status)
		s.Equal(string(TemplateDocumentExpiry), n.Metadata["template"])

		s.Equal(map[string]int{"queued": 1}, s.queue.StatusCounts())
	})

	s.Run("same day rerun creates nothing new", func() {
		created, err := s.engine.SweepTenant(s.ctx, s.tenantID)
		s.Require().NoError(err)
		s.Zero(created)
		s.Len(s.store.All(), 1)
		s.Equal(map[string]int{"queued": 1}, s.queue.StatusCounts())
	})

	s.Run("the day after a threshold stays silent", func() {
		nextDay := requestcontext.WithTime(context.Background(), s.now.Add(24*time.Hour))
		created, err := s.engine.SweepTenant(nextDay, s.tenantID)
		s.Require().NoError(err)
		s.Zero(created)
	})

	s.Run("days between thresholds never notify", func() {
		s.addExpiringDocument("insurance certificate", 10)
		created, err := s.engine.SweepTenant(s.ctx, s.tenantID)
		s.Require().NoError(err)
		s.Zero(created)
	})

	s.Run("each configured threshold fires independently", func() {
		s.addExpiringDocument("registration", 14)
		s.addExpiringDocument("permit", 30)

		created, err := s.engine.SweepTenant(s.ctx, s.tenantID)
		s.Require().NoError(err)
		s.Equal(2, created)

		byThreshold := make(map[int]Urgency)
		for _, n := range s.store.All() {
			byThreshold[n.ThresholdDays] = n.Urgency
		}
		s.Equal(UrgencyMedium, byThreshold[14])
		s.Equal(UrgencyLow, byThreshold[30])
	})

	s.Run("every notifying role receives its own notification", func() {
		s.records.AddUser(records.User{ID: id.NewUserID(), TenantID: s.tenantID, Role: "admin"})
		s.records.AddUser(records.User{ID: id.NewUserID(), TenantID: s.tenantID, Role: "viewer"})
		doc := s.addExpiringDocument("audit report", 7)

		created, err := s.engine.SweepTenant(s.ctx, s.tenantID)
		s.Require().NoError(err)
		// officer + admin for the new document, plus the admin catching up on
		// the three earlier documents still on thresholds. The viewer gets
		// nothing.
		s.Equal(5, created)

		recipients := 0
		for _, n := range s.store.All() {
			if n.DocumentID == doc.ID {
				recipients++
			}
		}
		s.Equal(2, recipients)
	})
}

func (s *EngineSuite) TestSweep() {
	s.Run("covers all active tenants and reports counts", func() {
		s.addExpiringDocument("license", 7)

		other := id.NewTenantID()
		s.records.AddTenant(records.Tenant{ID: other, Name: "Globex", Status: "active"})

		res, err := s.engine.Sweep(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, res.TenantsProcessed)
		s.Equal(1, res.NotificationsCreated)
		s.Empty(res.Errors)
	})

	s.Run("emits an audit event per created notification", func() {
		events := s.auditlog.Events()
		s.Require().NotEmpty(events)
		s.Equal(audit.ActionNotificationCreated, events[len(events)-1].Action)
	})
}

func TestUrgencyFor(t *testing.T) {
	cases := []struct {
		days int
		want Urgency
	}{
		{3, UrgencyHigh},
		{7, UrgencyHigh},
		{8, UrgencyMedium},
		{14, UrgencyMedium},
		{15, UrgencyLow},
		{30, UrgencyLow},
	}
	for _, tc := range cases {
		if got := UrgencyFor(tc.days); got != tc.want {
			t.Errorf("UrgencyFor(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}
