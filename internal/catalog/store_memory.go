package catalog

import (
	"context"
	"sort"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// MemoryStore is an in-memory catalog for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]bool
	sets    map[id.TenantID][]RuleSet
	bundles map[id.TenantID][]RequirementBundle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[id.TenantID]bool),
		sets:    make(map[id.TenantID][]RuleSet),
		bundles: make(map[id.TenantID][]RequirementBundle),
	}
}

// AddTenant registers a tenant so reads for it do not return ErrNotFound.
func (s *MemoryStore) AddTenant(tenantID id.TenantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = true
}

func (s *MemoryStore) AddRuleSet(rs RuleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[rs.TenantID] = true
	s.sets[rs.TenantID] = append(s.sets[rs.TenantID], rs)
}

func (s *MemoryStore) AddBundle(b RequirementBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[b.TenantID] = true
	s.bundles[b.TenantID] = append(s.bundles[b.TenantID], b)
}

func (s *MemoryStore) RuleSetsFor(ctx context.Context, tenantID id.TenantID, clientType, sector string) ([]RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.tenants[tenantID] {
		return nil, sentinel.ErrNotFound
	}
	var out []RuleSet
	for _, rs := range s.sets[tenantID] {
		if rs.Active && rs.AppliesTo(clientType, sector) {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (s *MemoryStore) BundlesFor(ctx context.Context, tenantID id.TenantID, authorities []string) ([]RequirementBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.tenants[tenantID] {
		return nil, sentinel.ErrNotFound
	}
	wanted := make(map[string]bool, len(authorities))
	for _, a := range authorities {
		wanted[a] = true
	}
	var out []RequirementBundle
	for _, b := range s.bundles[tenantID] {
		if len(authorities) == 0 || wanted[b.Authority] {
			b.Items = sortedItems(b.Items)
			out = append(out, b)
		}
	}
	return out, nil
}

func sortedItems(items []BundleItem) []BundleItem {
	out := append([]BundleItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}
