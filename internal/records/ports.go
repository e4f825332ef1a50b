package records

import (
	"context"
	"time"

	id "attest/pkg/domain"
)

// TenantStore enumerates tenants for scheduled runs.
type TenantStore interface {
	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]Tenant, error)
	// Get returns the tenant or sentinel.ErrNotFound.
	Get(ctx context.Context, tenantID id.TenantID) (Tenant, error)
}

// ClientStore reads a tenant's active clients.
type ClientStore interface {
	ListActive(ctx context.Context, tenantID id.TenantID) ([]Client, error)
	Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (Client, error)
}

// DocumentStore reads client documents with their active versions.
type DocumentStore interface {
	ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Document, error)
	// ListExpiringWithin returns valid documents whose active version expires
	// on or before the given date. Used by the expiry notification engine.
	ListExpiringWithin(ctx context.Context, tenantID id.TenantID, before time.Time) ([]Document, error)
}

// FilingStore reads client filings.
type FilingStore interface {
	ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Filing, error)
}

// UserStore resolves notification recipients.
type UserStore interface {
	// ListByRoles returns tenant users whose role is in the given set.
	ListByRoles(ctx context.Context, tenantID id.TenantID, roles []string) ([]User, error)
}
