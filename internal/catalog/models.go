// Package catalog holds the compliance rule and requirement-bundle
// configuration the engine evaluates against. Tenant administrators own the
// write path through the record-management surfaces; the engine only reads.
package catalog

import (
	"fmt"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// RuleKind is the closed set of rule interpretations. Only these three are
// ever evaluated; anything else is a configuration error.
type RuleKind string

const (
	RuleDocumentRequired    RuleKind = "document_required"
	RuleFilingRequired      RuleKind = "filing_required"
	RuleDocumentExpiryCheck RuleKind = "document_expiry_check"
)

var validRuleKinds = map[RuleKind]bool{
	RuleDocumentRequired:    true,
	RuleFilingRequired:      true,
	RuleDocumentExpiryCheck: true,
}

func (k RuleKind) IsValid() bool { return validRuleKinds[k] }

// Rule is a weighted compliance check belonging to exactly one RuleSet.
//
// Invariants:
//   - Weight is within [0, 1]
//   - Kind is one of the three supported kinds
//   - A document_expiry_check rule references a document category
type Rule struct {
	ID          id.RuleID
	RuleSetID   id.RuleSetID
	Kind        RuleKind
	TargetID    *id.CategoryID
	Weight      float64
	Description string
}

// NewRule validates and constructs a Rule.
func NewRule(ruleSetID id.RuleSetID, kind RuleKind, target *id.CategoryID, weight float64, description string) (Rule, error) {
	if !kind.IsValid() {
		return Rule{}, fmt.Errorf("%w: unknown rule kind %q", sentinel.ErrInvalidConfig, kind)
	}
	if weight < 0 || weight > 1 {
		return Rule{}, fmt.Errorf("%w: rule weight %v outside [0,1]", sentinel.ErrInvalidConfig, weight)
	}
	if kind == RuleDocumentExpiryCheck && (target == nil || target.IsNil()) {
		return Rule{}, fmt.Errorf("%w: expiry check rules must reference a document category", sentinel.ErrInvalidConfig)
	}
	return Rule{
		ID:          id.NewRuleID(),
		RuleSetID:   ruleSetID,
		Kind:        kind,
		TargetID:    target,
		Weight:      weight,
		Description: description,
	}, nil
}

// RuleSet groups rules and scopes them by client attributes. Empty filter
// slices match every client.
type RuleSet struct {
	ID          id.RuleSetID
	TenantID    id.TenantID
	Name        string
	ClientTypes []string
	Sectors     []string
	Active      bool
	Rules       []Rule
}

// AppliesTo reports whether the set's filters match the client attributes.
func (rs RuleSet) AppliesTo(clientType, sector string) bool {
	return matchesFilter(rs.ClientTypes, clientType) && matchesFilter(rs.Sectors, sector)
}

func matchesFilter(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == value {
			return true
		}
	}
	return false
}

// BundleItem is one ordered entry of a requirement bundle. A well-formed
// item references exactly one of a document category or a filing category.
type BundleItem struct {
	ID             id.BundleItemID
	BundleID       id.BundleID
	DocumentTypeID *id.CategoryID
	FilingTypeID   *id.CategoryID
	Required       bool
	DisplayOrder   int
	Description    string
}

// Validate reports configuration errors the evaluator treats as skippable.
func (bi BundleItem) Validate() error {
	hasDoc := bi.DocumentTypeID != nil && !bi.DocumentTypeID.IsNil()
	hasFiling := bi.FilingTypeID != nil && !bi.FilingTypeID.IsNil()
	if hasDoc && hasFiling {
		return fmt.Errorf("%w: bundle item references both a document and a filing category", sentinel.ErrInvalidConfig)
	}
	if !hasDoc && !hasFiling {
		return fmt.Errorf("%w: bundle item references neither a document nor a filing category", sentinel.ErrInvalidConfig)
	}
	return nil
}

// RequirementBundle is an authority-specific checklist of ordered items.
type RequirementBundle struct {
	ID        id.BundleID
	TenantID  id.TenantID
	Name      string
	Authority string
	Category  string
	Items     []BundleItem
}
