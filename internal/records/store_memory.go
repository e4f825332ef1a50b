package records

import (
	"context"
	"sync"
	"time"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// MemoryStore implements all record ports in memory. It backs unit tests and
// local development; production wiring uses the postgres implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	tenants   map[id.TenantID]Tenant
	users     map[id.TenantID][]User
	clients   map[id.TenantID][]Client
	documents map[id.ClientID][]Document
	filings   map[id.ClientID][]Filing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[id.TenantID]Tenant),
		users:     make(map[id.TenantID][]User),
		clients:   make(map[id.TenantID][]Client),
		documents: make(map[id.ClientID][]Document),
		filings:   make(map[id.ClientID][]Filing),
	}
}

func (s *MemoryStore) AddTenant(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *MemoryStore) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.TenantID] = append(s.users[u.TenantID], u)
}

func (s *MemoryStore) AddClient(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.TenantID] = append(s.clients[c.TenantID], c)
}

func (s *MemoryStore) AddDocument(d Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ClientID] = append(s.documents[d.ClientID], d)
}

func (s *MemoryStore) AddFiling(f Filing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filings[f.ClientID] = append(s.filings[f.ClientID], f)
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Tenant
	for _, t := range s.tenants {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID id.TenantID) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return Tenant{}, sentinel.ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListActiveClients(ctx context.Context, tenantID id.TenantID) ([]Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]Client(nil), s.clients[tenantID]...), nil
}

func (s *MemoryStore) GetClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients[tenantID] {
		if c.ID == clientID {
			return c, nil
		}
	}
	return Client{}, sentinel.ErrNotFound
}

func (s *MemoryStore) ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.documents[clientID] {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExpiringWithin(ctx context.Context, tenantID id.TenantID, before time.Time) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, docs := range s.documents {
		for _, d := range docs {
			if d.TenantID != tenantID || d.Status != DocumentValid {
				continue
			}
			exp := d.ExpiryDate()
			if exp != nil && !exp.After(before) {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) ListFilingsByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Filing
	for _, f := range s.filings[clientID] {
		if f.TenantID == tenantID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByRoles(ctx context.Context, tenantID id.TenantID, roles []string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var out []User
	for _, u := range s.users[tenantID] {
		if roleSet[u.Role] {
			out = append(out, u)
		}
	}
	return out, nil
}

// Typed facades so one MemoryStore can satisfy every port without method
// name collisions between ClientStore and FilingStore.

type memoryClients struct{ *MemoryStore }

func (m memoryClients) ListActive(ctx context.Context, tenantID id.TenantID) ([]Client, error) {
	return m.ListActiveClients(ctx, tenantID)
}

func (m memoryClients) Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (Client, error) {
	return m.GetClient(ctx, tenantID, clientID)
}

type memoryFilings struct{ *MemoryStore }

func (m memoryFilings) ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Filing, error) {
	return m.ListFilingsByClient(ctx, tenantID, clientID)
}

// Clients returns the store as a ClientStore.
func (s *MemoryStore) Clients() ClientStore { return memoryClients{s} }

// Filings returns the store as a FilingStore.
func (s *MemoryStore) Filings() FilingStore { return memoryFilings{s} }
