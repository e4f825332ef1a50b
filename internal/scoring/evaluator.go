package scoring

import (
	"context"
	"log/slog"
	"time"

	"attest/internal/catalog"
	"attest/internal/records"
	id "attest/pkg/domain"
	"attest/pkg/requestcontext"
)

// documentSatisfying are the document statuses that fulfill a requirement.
var documentSatisfying = map[records.DocumentStatus]bool{
	records.DocumentValid:         true,
	records.DocumentPendingReview: true,
}

// filingSatisfying are the filing statuses that fulfill a requirement.
var filingSatisfying = map[records.FilingStatus]bool{
	records.FilingSubmitted: true,
	records.FilingApproved:  true,
}

// Evaluator decides whether a single catalog entry is satisfied by a
// client's current facts. It holds no references to stores; callers supply
// everything, which keeps the rule semantics trivially testable.
type Evaluator struct {
	lookaheadDays int
	logger        *slog.Logger
}

// NewEvaluator constructs an evaluator with the given expiry lookahead
// window. A lookahead of zero or less falls back to the 30 day default.
func NewEvaluator(lookaheadDays int, logger *slog.Logger) *Evaluator {
	if lookaheadDays <= 0 {
		lookaheadDays = 30
	}
	return &Evaluator{lookaheadDays: lookaheadDays, logger: logger}
}

// EvaluateRule applies the per-kind matching semantics. A rule with no
// resolvable target is unsatisfied and logged, never fatal; a client with
// zero documents and filings simply fails every required rule.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule catalog.Rule, facts Facts) Result {
	switch rule.Kind {
	case catalog.RuleDocumentRequired:
		if rule.TargetID == nil || rule.TargetID.IsNil() {
			e.logUnresolvable(ctx, "rule", rule.ID.String())
			return Result{}
		}
		doc := latestSatisfyingDocument(facts.Documents, *rule.TargetID)
		if doc == nil {
			return Result{}
		}
		return Result{Satisfied: true, MatchedDocument: doc}

	case catalog.RuleFilingRequired:
		if rule.TargetID == nil || rule.TargetID.IsNil() {
			e.logUnresolvable(ctx, "rule", rule.ID.String())
			return Result{}
		}
		filing := firstSatisfyingFiling(facts.Filings, *rule.TargetID)
		if filing == nil {
			return Result{}
		}
		return Result{Satisfied: true, MatchedFiling: filing}

	case catalog.RuleDocumentExpiryCheck:
		if rule.TargetID == nil || rule.TargetID.IsNil() {
			e.logUnresolvable(ctx, "rule", rule.ID.String())
			return Result{}
		}
		return e.evaluateExpiry(ctx, *rule.TargetID, facts)

	default:
		e.logUnresolvable(ctx, "rule", rule.ID.String())
		return Result{}
	}
}

// EvaluateItem applies the same matching logic to a bundle item, keyed off
// whichever category reference is set. An item with neither reference is a
// configuration error the caller surfaces and skips.
func (e *Evaluator) EvaluateItem(ctx context.Context, item catalog.BundleItem, facts Facts) (Result, error) {
	if err := item.Validate(); err != nil {
		return Result{}, err
	}
	if item.DocumentTypeID != nil && !item.DocumentTypeID.IsNil() {
		doc := latestSatisfyingDocument(facts.Documents, *item.DocumentTypeID)
		if doc == nil {
			return Result{}, nil
		}
		return Result{Satisfied: true, MatchedDocument: doc}, nil
	}
	filing := firstSatisfyingFiling(facts.Filings, *item.FilingTypeID)
	if filing == nil {
		return Result{}, nil
	}
	return Result{Satisfied: true, MatchedFiling: filing}, nil
}

// evaluateExpiry is satisfied iff a matching document exists and its active
// version's expiry date, if present, is strictly in the future. Documents
// expiring inside the lookahead window stay satisfied but carry
// ExpiringInDays for the aggregator's expiring count.
func (e *Evaluator) evaluateExpiry(ctx context.Context, target id.CategoryID, facts Facts) Result {
	doc := latestSatisfyingDocument(facts.Documents, target)
	if doc == nil {
		return Result{}
	}
	expiry := doc.ExpiryDate()
	if expiry == nil {
		return Result{Satisfied: true, MatchedDocument: doc}
	}

	now := requestcontext.Now(ctx)
	if !expiry.After(now) {
		return Result{MatchedDocument: doc}
	}

	res := Result{Satisfied: true, MatchedDocument: doc}
	if days := DaysUntil(now, *expiry); days <= e.lookaheadDays {
		res.ExpiringInDays = &days
	}
	return res
}

// DaysUntil computes ceil((t - now) / 24h). Shared with the expiry
// notification engine so both passes agree on what "N days left" means.
func DaysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func latestSatisfyingDocument(docs []records.Document, target id.CategoryID) *records.Document {
	var match *records.Document
	for i := range docs {
		d := &docs[i]
		if d.CategoryID != target || !documentSatisfying[d.Status] {
			continue
		}
		if match == nil || d.CreatedAt.After(match.CreatedAt) {
			match = d
		}
	}
	return match
}

func firstSatisfyingFiling(filings []records.Filing, target id.CategoryID) *records.Filing {
	for i := range filings {
		f := &filings[i]
		if f.CategoryID == target && filingSatisfying[f.Status] {
			return f
		}
	}
	return nil
}

func (e *Evaluator) logUnresolvable(ctx context.Context, kind, entryID string) {
	if e.logger != nil {
		e.logger.WarnContext(ctx, "catalog entry has no resolvable target, treating as unsatisfied",
			"entry_kind", kind,
			"entry_id", entryID,
		)
	}
}
