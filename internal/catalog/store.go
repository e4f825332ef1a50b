package catalog

import (
	"context"

	id "attest/pkg/domain"
)

// Store is the engine's read path into the catalog. Empty result sets
// are valid; ErrNotFound is reserved for a missing tenant.
type Store interface {
	// RuleSetsFor returns active rule sets whose filters match the client's
	// type and sector, with their rules loaded.
	RuleSetsFor(ctx context.Context, tenantID id.TenantID, clientType, sector string) ([]RuleSet, error)
	// BundlesFor returns requirement bundles for the given authorities with
	// their items ordered by display order. An empty authority list returns
	// every bundle for the tenant.
	BundlesFor(ctx context.Context, tenantID id.TenantID, authorities []string) ([]RequirementBundle, error)
}
