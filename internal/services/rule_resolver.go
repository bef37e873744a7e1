package services

import (
	"errors"
	"sort"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

// ruleCandidate is the resolver's uniform view over discount rules, coupons
// and variant pricing rules. The engine flattens storage entities into
// candidates before resolution so ordering and stacking treat them alike.
type ruleCandidate struct {
	ID          string
	Name        string
	Source      domain.RuleSource
	Priority    int
	Stackable   bool
	CouponID    string
	CouponCode  string
	Conditions  []Condition
	Modifiers   []Modifier
	CampaignIDs []string
	Active      bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// ledgerCheckFunc asks the redemption ledger whether a coupon-backed
// candidate may still be applied.
type ledgerCheckFunc func(couponID string) (domain.RedemptionDecision, error)

// resolveCartRules filters, orders and stacks cart-level candidates for a
// context. Malformed candidates and denied coupons are dropped with warnings;
// a ledger failure aborts resolution.
func resolveCartRules(candidates []ruleCandidate, evalCtx EvaluationContext, eligible map[string]bool, check ledgerCheckFunc) ([]ruleCandidate, []PricingWarning, error) {
	matched := make([]ruleCandidate, 0, len(candidates))
	var warnings []PricingWarning

	for _, candidate := range candidates {
		if !candidateInScope(candidate, evalCtx.Timestamp, eligible) {
			continue
		}
		ok, err := evaluateConditions(candidate.Conditions, evalCtx, nil)
		if err != nil {
			if errors.Is(err, ErrMalformedRule) {
				warnings = append(warnings, malformedWarning(candidate.ID, err))
				continue
			}
			return nil, warnings, err
		}
		if !ok {
			continue
		}
		// Coupon-backed candidates need a ledger to commit against; without
		// one they are excluded so finalize never applies a discount it
		// cannot record.
		if candidate.CouponID != "" && check == nil {
			warnings = append(warnings, PricingWarning{
				RuleID:  candidate.ID,
				Code:    domain.WarningRedemptionDenied,
				Message: "coupon redemption is disabled",
			})
			continue
		}
		if candidate.CouponID != "" {
			decision, err := check(candidate.CouponID)
			if err != nil {
				return nil, warnings, err
			}
			if decision != domain.RedemptionAllowed {
				warnings = append(warnings, PricingWarning{
					RuleID:  candidate.ID,
					Code:    domain.WarningRedemptionDenied,
					Message: "coupon usage limit reached",
				})
				continue
			}
		}
		matched = append(matched, candidate)
	}

	orderCandidates(matched)
	return stackCartCandidates(matched), warnings, nil
}

// resolveVariantRules returns every matching variant candidate for a line, in
// priority order. Variant rules price independent dimensions and always
// compose, so no stacking policy applies.
func resolveVariantRules(candidates []ruleCandidate, evalCtx EvaluationContext, line *ContextLine, eligible map[string]bool) ([]ruleCandidate, []PricingWarning) {
	matched := make([]ruleCandidate, 0, len(candidates))
	var warnings []PricingWarning

	for _, candidate := range candidates {
		if !candidateInScope(candidate, evalCtx.Timestamp, eligible) {
			continue
		}
		ok, err := evaluateConditions(candidate.Conditions, evalCtx, line)
		if err != nil {
			if errors.Is(err, ErrMalformedRule) {
				warnings = append(warnings, malformedWarning(candidate.ID, err))
				continue
			}
			// Condition evaluation only fails on malformed shapes; anything
			// else is treated the same way so one bad rule cannot block the
			// line.
			warnings = append(warnings, malformedWarning(candidate.ID, err))
			continue
		}
		if ok {
			matched = append(matched, candidate)
		}
	}

	orderCandidates(matched)
	return matched, warnings
}

// candidateInScope applies the shared eligibility gate: campaign membership,
// activity flag and validity window.
func candidateInScope(candidate ruleCandidate, now time.Time, eligible map[string]bool) bool {
	if !windowOpen(candidate.Active, candidate.ValidFrom, candidate.ValidUntil, now) {
		return false
	}
	if len(candidate.CampaignIDs) == 0 {
		// Standalone rules are not campaign-gated.
		return true
	}
	for _, campaignID := range candidate.CampaignIDs {
		if eligible[campaignID] {
			return true
		}
	}
	return false
}

// orderCandidates sorts by priority descending with rule ID ascending as the
// deterministic tie-break. Fetch order from the store is never trusted.
func orderCandidates(candidates []ruleCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// stackCartCandidates applies the exclusivity policy to an ordered slice: the
// highest-priority match always applies; further matches apply only when both
// it and they are flagged stackable.
func stackCartCandidates(ordered []ruleCandidate) []ruleCandidate {
	if len(ordered) <= 1 {
		return ordered
	}
	winner := ordered[0]
	selected := []ruleCandidate{winner}
	if !winner.Stackable {
		return selected
	}
	for _, candidate := range ordered[1:] {
		if candidate.Stackable {
			selected = append(selected, candidate)
		}
	}
	return selected
}

func malformedWarning(ruleID string, err error) PricingWarning {
	return PricingWarning{
		RuleID:  ruleID,
		Code:    domain.WarningMalformedRule,
		Message: err.Error(),
	}
}
