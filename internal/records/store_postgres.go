package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// PostgresStore reads record facts from the shared relational schema. All
// methods are read-only; the CRUD surfaces own these tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status FROM tenants WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		var t Tenant
		var tid uuid.UUID
		if err := rows.Scan(&tid, &t.Name, &t.Status); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.ID = id.TenantID(tid)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, tenantID id.TenantID) (Tenant, error) {
	var t Tenant
	var tid uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status FROM tenants WHERE id = $1`,
		uuid.UUID(tenantID)).Scan(&tid, &t.Name, &t.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	t.ID = id.TenantID(tid)
	return t, nil
}

func (s *PostgresStore) ListActiveClients(ctx context.Context, tenantID id.TenantID) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, client_type, sector, risk_level
		 FROM clients WHERE tenant_id = $1 AND status = 'active' ORDER BY created_at`,
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, client_type, sector, risk_level
		 FROM clients WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(clientID))
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, sentinel.ErrNotFound
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	var cid, tid uuid.UUID
	if err := row.Scan(&cid, &tid, &c.Name, &c.Type, &c.Sector, &c.RiskLevel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, err
		}
		return Client{}, fmt.Errorf("scan client: %w", err)
	}
	c.ID = id.ClientID(cid)
	c.TenantID = id.TenantID(tid)
	return c, nil
}

const documentColumns = `
	d.id, d.tenant_id, d.client_id, d.category_id, d.name, d.status, d.created_at,
	v.issue_date, v.expiry_date`

func (s *PostgresStore) ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+`
		 FROM documents d
		 LEFT JOIN document_versions v ON v.document_id = d.id AND v.active
		 WHERE d.tenant_id = $1 AND d.client_id = $2
		 ORDER BY d.created_at`,
		uuid.UUID(tenantID), uuid.UUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *PostgresStore) ListExpiringWithin(ctx context.Context, tenantID id.TenantID, before time.Time) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+`
		 FROM documents d
		 JOIN document_versions v ON v.document_id = d.id AND v.active
		 WHERE d.tenant_id = $1 AND d.status = 'valid'
		   AND v.expiry_date IS NOT NULL AND v.expiry_date <= $2
		 ORDER BY v.expiry_date`,
		uuid.UUID(tenantID), before)
	if err != nil {
		return nil, fmt.Errorf("list expiring documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]Document, error) {
	var out []Document
	for rows.Next() {
		var d Document
		var did, tid, cid, catID uuid.UUID
		var status string
		var issue, expiry sql.NullTime
		if err := rows.Scan(&did, &tid, &cid, &catID, &d.Name, &status, &d.CreatedAt, &issue, &expiry); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID = id.DocumentID(did)
		d.TenantID = id.TenantID(tid)
		d.ClientID = id.ClientID(cid)
		d.CategoryID = id.CategoryID(catID)
		d.Status = DocumentStatus(status)
		if issue.Valid || expiry.Valid {
			v := &DocumentVersion{}
			if issue.Valid {
				t := issue.Time
				v.IssueDate = &t
			}
			if expiry.Valid {
				t := expiry.Time
				v.ExpiryDate = &t
			}
			d.ActiveVersion = v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFilingsByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Filing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, client_id, category_id, status, period_end, created_at
		 FROM filings WHERE tenant_id = $1 AND client_id = $2 ORDER BY created_at`,
		uuid.UUID(tenantID), uuid.UUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	var out []Filing
	for rows.Next() {
		var f Filing
		var fid, tid, cid, catID uuid.UUID
		var status string
		var periodEnd sql.NullTime
		if err := rows.Scan(&fid, &tid, &cid, &catID, &status, &periodEnd, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		f.ID = id.FilingID(fid)
		f.TenantID = id.TenantID(tid)
		f.ClientID = id.ClientID(cid)
		f.CategoryID = id.CategoryID(catID)
		f.Status = FilingStatus(status)
		if periodEnd.Valid {
			t := periodEnd.Time
			f.PeriodEnd = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByRoles(ctx context.Context, tenantID id.TenantID, roles []string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, email, role
		 FROM users WHERE tenant_id = $1 AND role = ANY($2) ORDER BY email`,
		uuid.UUID(tenantID), pq.Array(roles))
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var uid, tid uuid.UUID
		if err := rows.Scan(&uid, &tid, &u.Email, &u.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.ID = id.UserID(uid)
		u.TenantID = id.TenantID(tid)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Typed facades mirroring the memory store.

type pgClients struct{ *PostgresStore }

func (p pgClients) ListActive(ctx context.Context, tenantID id.TenantID) ([]Client, error) {
	return p.ListActiveClients(ctx, tenantID)
}

func (p pgClients) Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (Client, error) {
	return p.GetClient(ctx, tenantID, clientID)
}

type pgFilings struct{ *PostgresStore }

func (p pgFilings) ListByClient(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]Filing, error) {
	return p.ListFilingsByClient(ctx, tenantID, clientID)
}

// Clients returns the store as a ClientStore.
func (s *PostgresStore) Clients() ClientStore { return pgClients{s} }

// Filings returns the store as a FilingStore.
func (s *PostgresStore) Filings() FilingStore { return pgFilings{s} }
