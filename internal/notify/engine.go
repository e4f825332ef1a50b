package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"attest/internal/records"
	"attest/internal/scoring"
	id "attest/pkg/domain"
	"attest/pkg/platform/audit"
	"attest/pkg/requestcontext"
)

// Engine is the expiry notification pass. It runs on its own schedule
// (daily), scanning each tenant's valid documents for expiry dates that land
// exactly on one of the configured day thresholds.
//
// The exact-match design is deliberate: each recipient is notified once per
// threshold, not once per day for the whole window. A run skipped on the
// precise threshold day misses that threshold's notification rather than
// generating a storm of duplicates later.
type Engine struct {
	tenants    records.TenantStore
	documents  records.DocumentStore
	users      records.UserStore
	store      Store
	queue      DeliveryQueue
	thresholds []int
	roles      []string
	auditor    *audit.Publisher
	logger     *slog.Logger
}

// Config carries the engine's tunables.
type Config struct {
	// ThresholdDays are the exact days-before-expiry marks that trigger a
	// notification. Defaults to {7, 14, 30}.
	ThresholdDays []int
	// NotifyingRoles are the tenant roles that receive expiry notifications.
	// Defaults to admin, manager, compliance_officer.
	NotifyingRoles []string
}

func NewEngine(
	tenants records.TenantStore,
	documents records.DocumentStore,
	users records.UserStore,
	store Store,
	queue DeliveryQueue,
	cfg Config,
	auditor *audit.Publisher,
	logger *slog.Logger,
) *Engine {
	thresholds := cfg.ThresholdDays
	if len(thresholds) == 0 {
		thresholds = []int{7, 14, 30}
	}
	thresholds = append([]int(nil), thresholds...)
	sort.Ints(thresholds)

	roles := cfg.NotifyingRoles
	if len(roles) == 0 {
		roles = []string{"admin", "manager", "compliance_officer"}
	}

	return &Engine{
		tenants:    tenants,
		documents:  documents,
		users:      users,
		store:      store,
		queue:      queue,
		thresholds: thresholds,
		roles:      roles,
		auditor:    auditor,
		logger:     logger,
	}
}

// Sweep runs one expiry pass across all active tenants. Per-tenant failures
// are recorded and do not abort sibling tenants.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	tenants, err := e.tenants.ListActive(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("enumerate tenants: %w", err)
	}

	result := SweepResult{Errors: make(map[id.TenantID]string)}
	for _, tenant := range tenants {
		created, err := e.SweepTenant(ctx, tenant.ID)
		result.TenantsProcessed++
		result.NotificationsCreated += created
		if err != nil {
			result.Errors[tenant.ID] = err.Error()
			if e.logger != nil {
				e.logger.ErrorContext(ctx, "expiry sweep failed for tenant",
					"tenant_id", tenant.ID.String(),
					"error", err,
				)
			}
		}
	}
	return result, nil
}

// SweepTenant scans one tenant. Returns how many notifications were actually
// created; re-running on the same day creates zero because the insert is
// idempotent on (document, threshold, recipient).
func (e *Engine) SweepTenant(ctx context.Context, tenantID id.TenantID) (int, error) {
	now := requestcontext.Now(ctx)
	maxThreshold := e.thresholds[len(e.thresholds)-1]
	horizon := now.AddDate(0, 0, maxThreshold)

	docs, err := e.documents.ListExpiringWithin(ctx, tenantID, horizon)
	if err != nil {
		return 0, fmt.Errorf("list expiring documents: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	recipients, err := e.users.ListByRoles(ctx, tenantID, e.roles)
	if err != nil {
		return 0, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	created := 0
	for _, doc := range docs {
		expiry := doc.ExpiryDate()
		if expiry == nil {
			continue
		}
		days := scoring.DaysUntil(now, *expiry)
		if !e.isThreshold(days) {
			continue
		}
		for _, recipient := range recipients {
			ok, err := e.createNotification(ctx, doc, recipient, days, *expiry)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

func (e *Engine) isThreshold(days int) bool {
	for _, t := range e.thresholds {
		if days == t {
			return true
		}
	}
	return false
}

func (e *Engine) createNotification(ctx context.Context, doc records.Document, recipient records.User, days int, expiry time.Time) (bool, error) {
	n := Notification{
		ID:            id.NewNotificationID(),
		TenantID:      doc.TenantID,
		RecipientID:   recipient.ID,
		Channel:       ChannelEmail,
		Status:        StatusPending,
		Message:       fmt.Sprintf("Document %q expires in %d days", doc.Name, days),
		DocumentID:    doc.ID,
		ThresholdDays: days,
		Urgency:       UrgencyFor(days),
		Metadata: map[string]string{
			"document_id":   doc.ID.String(),
			"document_name": doc.Name,
			"client_id":     doc.ClientID.String(),
			"expiry_date":   expiry.Format("2006-01-02"),
			"threshold":     fmt.Sprintf("%d", days),
			"template":      string(TemplateDocumentExpiry),
		},
	}

	inserted, err := e.store.Insert(ctx, n)
	if err != nil {
		return false, fmt.Errorf("insert notification for document %s: %w", doc.ID, err)
	}
	if !inserted {
		// Already notified for this (document, threshold, recipient).
		return false, nil
	}

	if err := e.queue.Enqueue(ctx, n.ID); err != nil {
		return true, fmt.Errorf("enqueue delivery for notification %s: %w", n.ID, err)
	}

	e.auditor.Emit(ctx, audit.Event{
		TenantID: doc.TenantID.String(),
		Subject:  doc.ID.String(),
		Action:   audit.ActionNotificationCreated,
		Detail:   fmt.Sprintf("threshold=%d recipient=%s", days, recipient.ID),
	})
	return true, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if res, err := e.Sweep(ctx); err != nil {
				if e.logger != nil {
					e.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
				}
			} else if e.logger != nil {
				e.logger.InfoContext(ctx, "expiry sweep finished",
					"tenants", res.TenantsProcessed,
					"created", res.NotificationsCreated,
					"errors", len(res.Errors),
				)
			}
		}
	}
}
