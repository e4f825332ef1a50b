package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// PostgresStore reads catalog configuration from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RuleSetsFor(ctx context.Context, tenantID id.TenantID, clientType, sector string) ([]RuleSet, error) {
	if err := s.tenantExists(ctx, tenantID); err != nil {
		return nil, err
	}

	// Empty filter arrays match every client; scoping happens in SQL so the
	// engine never loads sets that cannot apply.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, client_types, sectors, active
		FROM rule_sets
		WHERE tenant_id = $1 AND active
		  AND (cardinality(client_types) = 0 OR $2 = ANY(client_types))
		  AND (cardinality(sectors) = 0 OR $3 = ANY(sectors))
		ORDER BY created_at`,
		uuid.UUID(tenantID), clientType, sector)
	if err != nil {
		return nil, fmt.Errorf("query rule sets: %w", err)
	}
	defer rows.Close()

	var sets []RuleSet
	byID := make(map[id.RuleSetID]int)
	var setIDs []uuid.UUID
	for rows.Next() {
		var rs RuleSet
		var rsID, tid uuid.UUID
		if err := rows.Scan(&rsID, &tid, &rs.Name, pq.Array(&rs.ClientTypes), pq.Array(&rs.Sectors), &rs.Active); err != nil {
			return nil, fmt.Errorf("scan rule set: %w", err)
		}
		rs.ID = id.RuleSetID(rsID)
		rs.TenantID = id.TenantID(tid)
		byID[rs.ID] = len(sets)
		sets = append(sets, rs)
		setIDs = append(setIDs, rsID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, nil
	}

	ruleRows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_set_id, kind, target_id, weight, description
		FROM rules WHERE rule_set_id = ANY($1)`,
		pq.Array(setIDs))
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var r Rule
		var rID, rsID uuid.UUID
		var kind string
		var target uuid.NullUUID
		if err := ruleRows.Scan(&rID, &rsID, &kind, &target, &r.Weight, &r.Description); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.ID = id.RuleID(rID)
		r.RuleSetID = id.RuleSetID(rsID)
		r.Kind = RuleKind(kind)
		if target.Valid {
			cid := id.CategoryID(target.UUID)
			r.TargetID = &cid
		}
		if idx, ok := byID[r.RuleSetID]; ok {
			sets[idx].Rules = append(sets[idx].Rules, r)
		}
	}
	return sets, ruleRows.Err()
}

func (s *PostgresStore) BundlesFor(ctx context.Context, tenantID id.TenantID, authorities []string) ([]RequirementBundle, error) {
	if err := s.tenantExists(ctx, tenantID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, authority, category
		FROM requirement_bundles
		WHERE tenant_id = $1 AND (cardinality($2::text[]) = 0 OR authority = ANY($2))
		ORDER BY authority, name`,
		uuid.UUID(tenantID), pq.Array(authorities))
	if err != nil {
		return nil, fmt.Errorf("query bundles: %w", err)
	}
	defer rows.Close()

	var bundles []RequirementBundle
	byID := make(map[id.BundleID]int)
	var bundleIDs []uuid.UUID
	for rows.Next() {
		var b RequirementBundle
		var bID, tid uuid.UUID
		if err := rows.Scan(&bID, &tid, &b.Name, &b.Authority, &b.Category); err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		b.ID = id.BundleID(bID)
		b.TenantID = id.TenantID(tid)
		byID[b.ID] = len(bundles)
		bundles = append(bundles, b)
		bundleIDs = append(bundleIDs, bID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bundles) == 0 {
		return nil, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, bundle_id, document_type_id, filing_type_id, required, display_order, description
		FROM bundle_items WHERE bundle_id = ANY($1)
		ORDER BY display_order`,
		pq.Array(bundleIDs))
	if err != nil {
		return nil, fmt.Errorf("query bundle items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var bi BundleItem
		var biID, bID uuid.UUID
		var docType, filingType uuid.NullUUID
		if err := itemRows.Scan(&biID, &bID, &docType, &filingType, &bi.Required, &bi.DisplayOrder, &bi.Description); err != nil {
			return nil, fmt.Errorf("scan bundle item: %w", err)
		}
		bi.ID = id.BundleItemID(biID)
		bi.BundleID = id.BundleID(bID)
		if docType.Valid {
			cid := id.CategoryID(docType.UUID)
			bi.DocumentTypeID = &cid
		}
		if filingType.Valid {
			cid := id.CategoryID(filingType.UUID)
			bi.FilingTypeID = &cid
		}
		if idx, ok := byID[bi.BundleID]; ok {
			bundles[idx].Items = append(bundles[idx].Items, bi)
		}
	}
	return bundles, itemRows.Err()
}

func (s *PostgresStore) tenantExists(ctx context.Context, tenantID id.TenantID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`,
		uuid.UUID(tenantID)).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check tenant: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}
