package scoring

import (
	"time"

	"attest/internal/catalog"
	"attest/internal/records"
	id "attest/pkg/domain"
)

// Aggregate folds per-rule and per-item results into the client's
// ComplianceScore. It is idempotent and side-effect free: identical inputs
// always produce an identical score.
//
// The numeric score comes from the weighted rules alone: sum of weight for
// satisfied rules over the sum of all weights, scaled to 0-100 and clamped.
// A client with zero applicable rules is vacuously compliant at 100/green.
func Aggregate(
	tenantID id.TenantID,
	clientID id.ClientID,
	ruleResults []RuleResult,
	itemResults []ItemResult,
	filings []records.Filing,
	thresholds Thresholds,
	now time.Time,
) ComplianceScore {
	var weightSum, satisfiedSum float64
	missing := 0
	expiring := 0

	for _, rr := range ruleResults {
		w := rr.Rule.Weight
		if w < 0 {
			// Weights outside [0,1] should be rejected at catalog write
			// time; tolerate them here so a bad row cannot push the score
			// out of bounds.
			w = 0
		}
		weightSum += w
		if rr.Result.Satisfied {
			satisfiedSum += w
		}
		switch rr.Rule.Kind {
		case catalog.RuleDocumentRequired, catalog.RuleFilingRequired:
			if !rr.Result.Satisfied {
				missing++
			}
		case catalog.RuleDocumentExpiryCheck:
			if rr.Result.Satisfied && rr.Result.ExpiringInDays != nil {
				expiring++
			}
		}
	}

	score := 100.0
	if weightSum > 0 {
		score = satisfiedSum / weightSum * 100
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	breakdown := make(map[string]AuthorityScore)
	for _, ir := range itemResults {
		if ir.Err != nil {
			// Malformed items are skipped, not counted against the client.
			continue
		}
		as := breakdown[ir.Authority]
		as.Total++
		if ir.Result.Satisfied {
			as.Satisfied++
		} else if ir.Item.Required {
			missing++
		}
		breakdown[ir.Authority] = as
	}
	for authority, as := range breakdown {
		if as.Total > 0 {
			as.Score = float64(as.Satisfied) / float64(as.Total) * 100
		} else {
			as.Score = 100
		}
		breakdown[authority] = as
	}

	overdue := 0
	for _, f := range filings {
		if f.Status == records.FilingOverdue {
			overdue++
		}
	}

	return ComplianceScore{
		ClientID:      clientID,
		TenantID:      tenantID,
		Level:         LevelFor(score, thresholds),
		Score:         score,
		MissingCount:  missing,
		ExpiringCount: expiring,
		OverdueCount:  overdue,
		Breakdown:     breakdown,
		CalculatedAt:  now,
	}
}

// LevelFor classifies a 0-100 score. Boundaries are inclusive: exactly 80 is
// green and exactly 50 is amber.
func LevelFor(score float64, t Thresholds) Level {
	switch {
	case score >= t.Green:
		return LevelGreen
	case score >= t.Amber:
		return LevelAmber
	default:
		return LevelRed
	}
}
