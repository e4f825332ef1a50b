// Package scoring implements the fulfillment evaluator and score aggregator.
// Evaluation is pure: facts in, results out. The only side effect in the
// package is the Service's final score write, which fully replaces the prior
// row for the client.
package scoring

import (
	"time"

	"attest/internal/catalog"
	"attest/internal/records"
	id "attest/pkg/domain"
)

// Level is the three-way compliance classification.
type Level string

const (
	LevelGreen Level = "green"
	LevelAmber Level = "amber"
	LevelRed   Level = "red"
)

// Thresholds maps numeric scores to levels. Scores at or above Green are
// green, at or above Amber are amber, everything below is red.
type Thresholds struct {
	Green float64
	Amber float64
}

// DefaultThresholds are the boundaries pinned by the aggregator tests. The
// inclusive >= comparison at each boundary is load-bearing: a score of
// exactly 50 classifies as amber, not red.
var DefaultThresholds = Thresholds{Green: 80, Amber: 50}

// Facts is a client's current record state, pulled once per evaluation.
type Facts struct {
	Documents []records.Document
	Filings   []records.Filing
}

// Result is the outcome of evaluating one rule or bundle item.
type Result struct {
	Satisfied bool
	// ExpiringInDays is set when a satisfied expiry check falls inside the
	// lookahead window. The rule still counts as satisfied; the aggregator
	// uses this to increment the expiring count.
	ExpiringInDays  *int
	MatchedDocument *records.Document
	MatchedFiling   *records.Filing
}

// RuleResult pairs a rule with its evaluation outcome.
type RuleResult struct {
	Rule   catalog.Rule
	Result Result
}

// ItemResult pairs a bundle item with its outcome. Err carries a
// configuration error for items that were skipped rather than evaluated.
type ItemResult struct {
	Item      catalog.BundleItem
	Authority string
	Result    Result
	Err       error
}

// AuthorityScore is the per-authority slice of the breakdown.
type AuthorityScore struct {
	Satisfied int     `json:"satisfied"`
	Total     int     `json:"total"`
	Score     float64 `json:"score"`
}

// ComplianceScore is the one live score row per client. Overwritten in place
// on every evaluation; no history retained.
type ComplianceScore struct {
	ClientID      id.ClientID
	TenantID      id.TenantID
	Level         Level
	Score         float64
	MissingCount  int
	ExpiringCount int
	OverdueCount  int
	Breakdown     map[string]AuthorityScore
	CalculatedAt  time.Time
}

// ItemDetail is the per-item fulfillment view exposed for display.
type ItemDetail struct {
	Item            catalog.BundleItem
	Satisfied       bool
	Invalid         bool
	MatchedDocument *records.Document
	MatchedFiling   *records.Filing
}

// BundleDetail groups item details under their source bundle.
type BundleDetail struct {
	Bundle catalog.RequirementBundle
	Items  []ItemDetail
}
