//go:build integration

package notify_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"attest/internal/notify"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/testutil/containers"
)

// Verifies the dedup semantics at the database level: the unique index on
// (document_id, threshold_days, recipient_id) is the real enforcement point;
// the memory store only mirrors it.

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *notify.PostgresStore

	tenantID    id.TenantID
	recipientID id.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = notify.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "delivery_jobs", "notifications", "users", "tenants"))

	s.tenantID = id.NewTenantID()
	s.recipientID = id.NewUserID()
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status) VALUES ($1, 'Acme', 'active')`, s.tenantID.String())
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, role) VALUES ($1, $2, 'officer@acme.example', 'compliance_officer')`,
		s.recipientID.String(), s.tenantID.String())
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) notification(documentID id.DocumentID, threshold int) notify.Notification {
	return notify.Notification{
		ID:            id.NewNotificationID(),
		TenantID:      s.tenantID,
		RecipientID:   s.recipientID,
		Channel:       notify.ChannelEmail,
		Status:        notify.StatusPending,
		Message:       "document expires soon",
		DocumentID:    documentID,
		ThresholdDays: threshold,
		Urgency:       notify.UrgencyFor(threshold),
		Metadata:      map[string]string{"template": string(notify.TemplateDocumentExpiry)},
	}
}

func (s *PostgresStoreSuite) TestInsertDedup() {
	ctx := context.Background()
	documentID := id.NewDocumentID()

	s.Run("first insert creates the row", func() {
		inserted, err := s.store.Insert(ctx, s.notification(documentID, 7))
		s.Require().NoError(err)
		s.True(inserted)
	})

	s.Run("second insert for the same key is a no-op", func() {
		inserted, err := s.store.Insert(ctx, s.notification(documentID, 7))
		s.Require().NoError(err)
		s.False(inserted)
	})

	s.Run("a different threshold is a different key", func() {
		inserted, err := s.store.Insert(ctx, s.notification(documentID, 14))
		s.Require().NoError(err)
		s.True(inserted)
	})
}

// TestConcurrentInsert verifies exactly one of many concurrent inserts for
// the same key wins, which is what makes overlapping sweeps safe.
func (s *PostgresStoreSuite) TestConcurrentInsert() {
	ctx := context.Background()
	documentID := id.NewDocumentID()
	const goroutines = 20

	var wg sync.WaitGroup
	var createdCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.store.Insert(ctx, s.notification(documentID, 7))
			s.NoError(err)
			if inserted {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), createdCount.Load())
}

func (s *PostgresStoreSuite) TestStatusTransitions() {
	ctx := context.Background()
	n := s.notification(id.NewDocumentID(), 7)

	inserted, err := s.store.Insert(ctx, n)
	s.Require().NoError(err)
	s.Require().True(inserted)

	s.Run("mark sent records the provider message id", func() {
		s.Require().NoError(s.store.MarkSent(ctx, n.ID, "provider-9"))
		got, err := s.store.Get(ctx, n.ID)
		s.Require().NoError(err)
		s.Equal(notify.StatusSent, got.Status)
		s.Equal("provider-9", got.Metadata["provider_message_id"])
	})

	s.Run("mark failed records the error", func() {
		s.Require().NoError(s.store.MarkFailed(ctx, n.ID, "smtp unavailable"))
		got, err := s.store.Get(ctx, n.ID)
		s.Require().NoError(err)
		s.Equal(notify.StatusFailed, got.Status)
		s.Equal("smtp unavailable", got.Metadata["delivery_error"])
	})

	s.Run("unknown notification returns not found", func() {
		_, err := s.store.Get(ctx, id.NewNotificationID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
