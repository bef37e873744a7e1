package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/currency"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

// PricingEngine folds the resolved rule set over an evaluation context. It is
// stateless per call: preview and finalize share the same evaluation path,
// finalize additionally commits coupon redemptions and emits events.
type PricingEngine struct {
	discountRules  repositories.DiscountRuleRepository
	variantRules   repositories.VariantRuleRepository
	coupons        repositories.CouponRepository
	campaigns      CampaignService
	ledger         RedemptionLedger
	publisher      RedemptionEventPublisher
	variantPricing bool
	couponsEnabled bool
	now            func() time.Time
	logger         func(context.Context, string, map[string]any)
}

type PricingEngineDeps struct {
	DiscountRules        repositories.DiscountRuleRepository
	VariantRules         repositories.VariantRuleRepository
	Coupons              repositories.CouponRepository
	Campaigns            CampaignService
	Ledger               RedemptionLedger
	Publisher            RedemptionEventPublisher
	EnableVariantPricing bool
	EnableCoupons        bool
	Now                  func() time.Time
	Logger               func(context.Context, string, map[string]any)
}

func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.DiscountRules == nil {
		return nil, ErrPricingEngineRuleRepositoryMissing
	}
	if deps.EnableVariantPricing && deps.VariantRules == nil {
		return nil, ErrPricingEngineRuleRepositoryMissing
	}
	if deps.EnableCoupons {
		if deps.Coupons == nil {
			return nil, ErrPricingEngineCouponRepositoryMissing
		}
		if deps.Ledger == nil {
			return nil, ErrPricingEngineLedgerMissing
		}
	}
	if deps.Campaigns == nil {
		return nil, ErrPricingEngineCampaignResolverMissing
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		discountRules:  deps.DiscountRules,
		variantRules:   deps.VariantRules,
		coupons:        deps.Coupons,
		campaigns:      deps.Campaigns,
		ledger:         deps.Ledger,
		publisher:      deps.Publisher,
		variantPricing: deps.EnableVariantPricing,
		couponsEnabled: deps.EnableCoupons,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

var _ PricingService = (*PricingEngine)(nil)

// PreviewPricing evaluates the context without touching the ledger beyond
// read-only checks. Calling it twice with an unchanged context yields the
// same result.
func (e *PricingEngine) PreviewPricing(ctx context.Context, evalCtx EvaluationContext) (PricingResult, error) {
	result, _, err := e.evaluate(ctx, evalCtx)
	return result, err
}

// FinalizePricing evaluates the context and commits every applied coupon. Any
// commit conflict fails the whole call so the caller never records an order
// against pricing the ledger refused. Commits are not transactional across
// coupons: usage rows are immutable, so when a later coupon conflicts the
// earlier coupons' rows for this order stay recorded. Retrying with the same
// order id replays those commits idempotently and converges; an abandoned
// order leaves them counted against the coupon limits.
func (e *PricingEngine) FinalizePricing(ctx context.Context, cmd FinalizePricingCommand) (PricingResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PricingResult{}, ErrPricingEngineOrderIDMissing
	}

	result, applied, err := e.evaluate(ctx, cmd.Context)
	if err != nil {
		return PricingResult{}, err
	}

	for _, coupon := range applied {
		usage, err := e.ledger.Commit(ctx, CommitRedemptionCommand{
			CouponID: coupon.couponID,
			UserID:   cmd.Context.CustomerID,
			OrderID:  orderID,
			Amount:   coupon.amount,
			Currency: result.Currency,
		})
		if err != nil {
			return PricingResult{}, err
		}
		e.publishRedemption(ctx, usage)
	}

	result.FinalizedOrderID = orderID
	return result, nil
}

// appliedCoupon records a coupon-backed rule that made it into the result and
// must therefore be committed on finalize.
type appliedCoupon struct {
	couponID string
	code     string
	amount   int64
}

func (e *PricingEngine) evaluate(ctx context.Context, evalCtx EvaluationContext) (PricingResult, []appliedCoupon, error) {
	if err := e.validateContext(&evalCtx); err != nil {
		return PricingResult{}, nil, err
	}

	cartCandidates, variantCandidates, warnings, err := e.loadCandidates(ctx, evalCtx)
	if err != nil {
		return PricingResult{}, nil, err
	}

	eligible, err := e.campaignEligibility(ctx, evalCtx, cartCandidates, variantCandidates)
	if err != nil {
		return PricingResult{}, nil, err
	}

	currencyCode := evalCtx.Currency
	ruleAmounts := make(map[string]scaledAmount)
	ruleMeta := make(map[string]ruleCandidate)
	ruleOrder := make([]string, 0, 8)

	// Per-line variant pricing. All matching variant rules compose in
	// priority order before the line is rounded.
	lines := make([]LinePricing, len(evalCtx.Lines))
	lineScaled := make([]scaledAmount, len(evalCtx.Lines))
	var subtotal int64

	for i := range evalCtx.Lines {
		line := evalCtx.Lines[i]
		lineSubtotal := line.UnitPrice * line.Quantity
		subtotal += lineSubtotal

		adjustedUnit := toScaled(line.UnitPrice)
		var appliedIDs []string

		matched, variantWarnings := resolveVariantRules(variantCandidates, evalCtx, &line, eligible)
		warnings = append(warnings, variantWarnings...)
		for _, candidate := range matched {
			next, applyErr := applyModifierChain(candidate.Modifiers, adjustedUnit, line.Quantity, currencyCode)
			if applyErr != nil {
				warnings = append(warnings, applyWarning(candidate.ID, applyErr))
				continue
			}
			if next != adjustedUnit {
				delta := (adjustedUnit - next) * scaledAmount(line.Quantity)
				if _, seen := ruleMeta[candidate.ID]; !seen {
					ruleMeta[candidate.ID] = candidate
					ruleOrder = append(ruleOrder, candidate.ID)
				}
				ruleAmounts[candidate.ID] += delta
			}
			appliedIDs = append(appliedIDs, candidate.ID)
			adjustedUnit = next
		}

		lineScaled[i] = adjustedUnit * scaledAmount(line.Quantity)
		lines[i] = LinePricing{
			LineID:            line.LineID,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice,
			AdjustedUnitPrice: adjustedUnit.roundToMinor(),
			Subtotal:          lineSubtotal,
			AppliedRuleIDs:    appliedIDs,
		}
	}

	// Cart-level resolution over the variant-adjusted running total.
	cartBefore := sumScaled(lineScaled)
	selected, cartWarnings, err := resolveCartRules(cartCandidates, evalCtx, eligible, e.ledgerCheck(ctx, evalCtx))
	if err != nil {
		return PricingResult{}, nil, err
	}
	warnings = append(warnings, cartWarnings...)

	var appliedCoupons []appliedCoupon
	cartRunning := cartBefore
	for _, candidate := range selected {
		next, applyErr := applyModifierChain(candidate.Modifiers, cartRunning, subtotal, currencyCode)
		if applyErr != nil {
			warnings = append(warnings, applyWarning(candidate.ID, applyErr))
			continue
		}
		delta := cartRunning - next
		if _, seen := ruleMeta[candidate.ID]; !seen {
			ruleMeta[candidate.ID] = candidate
			ruleOrder = append(ruleOrder, candidate.ID)
		}
		ruleAmounts[candidate.ID] += delta
		if candidate.CouponID != "" {
			appliedCoupons = append(appliedCoupons, appliedCoupon{
				couponID: candidate.CouponID,
				code:     candidate.CouponCode,
				amount:   delta.roundToMinor(),
			})
		}
		for idx := range lines {
			lines[idx].AppliedRuleIDs = append(lines[idx].AppliedRuleIDs, candidate.ID)
		}
		cartRunning = next
	}

	// Round each line once, then allocate the signed cart-level delta across
	// lines by their rounded weights so line totals always sum to the cart
	// total. The delta is negative when a fixed_price override raised the
	// running total above the line sum; the surcharge allocates the same way.
	lineTotals := make([]int64, len(lines))
	for i := range lines {
		lineTotals[i] = lineScaled[i].roundToMinor()
	}
	cartDelta := (cartBefore - cartRunning).roundSigned()
	cartAlloc := allocateByWeight(cartDelta, lineTotals)

	var total int64
	for i := range lines {
		lineTotal := lineTotals[i] - cartAlloc[i]
		if lineTotal < 0 {
			lineTotal = 0
		}
		lines[i].Total = lineTotal
		lines[i].Discount = lines[i].Subtotal - lineTotal
		total += lineTotal
	}

	result := PricingResult{
		Currency:     currencyCode,
		Subtotal:     subtotal,
		Discount:     subtotal - total,
		Total:        total,
		Lines:        lines,
		AppliedRules: buildAppliedRules(ruleOrder, ruleMeta, ruleAmounts),
		Warnings:     warnings,
	}

	if len(warnings) > 0 {
		e.logger(ctx, "pricing_warnings", map[string]any{"count": len(warnings)})
	}

	return result, appliedCoupons, nil
}

func (e *PricingEngine) validateContext(evalCtx *EvaluationContext) error {
	code := strings.ToUpper(strings.TrimSpace(evalCtx.Currency))
	if code == "" {
		return fmt.Errorf("%w: currency is required", ErrCurrencyMismatch)
	}
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("%w: unknown currency %q", ErrCurrencyMismatch, evalCtx.Currency)
	}
	evalCtx.Currency = code

	if evalCtx.Timestamp.IsZero() {
		evalCtx.Timestamp = e.now()
	}

	for _, line := range evalCtx.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %s quantity must be positive", ErrMalformedRule, line.LineID)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: line %s unit price cannot be negative", ErrMalformedRule, line.LineID)
		}
		if line.UnitPrice > 0 && line.UnitPrice > math.MaxInt64/priceScale/line.Quantity {
			return fmt.Errorf("%w: line %s amount overflow", ErrMalformedRule, line.LineID)
		}
	}
	return nil
}

// loadCandidates fetches discount rules, variant rules and the coupons named
// by the context, flattened into resolver candidates.
func (e *PricingEngine) loadCandidates(ctx context.Context, evalCtx EvaluationContext) ([]ruleCandidate, []ruleCandidate, []PricingWarning, error) {
	var warnings []PricingWarning

	discountRules, err := e.discountRules.ListCandidates(ctx)
	if err != nil {
		return nil, nil, nil, wrapStoreError(err)
	}
	cartCandidates := make([]ruleCandidate, 0, len(discountRules)+len(evalCtx.CouponCodes))
	for _, rule := range discountRules {
		cartCandidates = append(cartCandidates, discountRuleCandidate(rule))
	}

	if e.couponsEnabled {
		for _, rawCode := range evalCtx.CouponCodes {
			code := domain.NormalizeCouponCode(rawCode)
			if code == "" {
				continue
			}
			coupon, err := e.coupons.FindByCode(ctx, code)
			if err != nil {
				if isNotFound(err) {
					warnings = append(warnings, PricingWarning{
						Code:    domain.WarningRedemptionDenied,
						Message: fmt.Sprintf("coupon code %q not found", code),
					})
					continue
				}
				return nil, nil, nil, wrapStoreError(err)
			}
			cartCandidates = append(cartCandidates, couponCandidate(coupon))
		}
	}

	var variantCandidates []ruleCandidate
	if e.variantPricing {
		variantRules, err := e.variantRules.ListCandidates(ctx)
		if err != nil {
			return nil, nil, nil, wrapStoreError(err)
		}
		variantCandidates = make([]ruleCandidate, 0, len(variantRules))
		for _, rule := range variantRules {
			variantCandidates = append(variantCandidates, variantRuleCandidate(rule))
		}
	}

	return cartCandidates, variantCandidates, warnings, nil
}

func (e *PricingEngine) campaignEligibility(ctx context.Context, evalCtx EvaluationContext, candidateSets ...[]ruleCandidate) (map[string]bool, error) {
	seen := make(map[string]struct{})
	var campaignIDs []string
	for _, candidates := range candidateSets {
		for _, candidate := range candidates {
			for _, id := range candidate.CampaignIDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				campaignIDs = append(campaignIDs, id)
			}
		}
	}
	if len(campaignIDs) == 0 {
		return map[string]bool{}, nil
	}
	eligible, err := e.campaigns.EligibleCampaigns(ctx, campaignIDs, evalCtx.Timestamp, evalCtx.Zone, evalCtx.Channel)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return eligible, nil
}

func (e *PricingEngine) ledgerCheck(ctx context.Context, evalCtx EvaluationContext) ledgerCheckFunc {
	if e.ledger == nil {
		return nil
	}
	return func(couponID string) (domain.RedemptionDecision, error) {
		return e.ledger.Check(ctx, couponID, evalCtx.CustomerID)
	}
}

func (e *PricingEngine) publishRedemption(ctx context.Context, usage CouponUsage) {
	if e.publisher == nil {
		return
	}
	_, err := e.publisher.PublishRedemptionCommitted(ctx, RedemptionCommittedMessage{
		UsageID:  usage.ID,
		CouponID: usage.CouponID,
		UserID:   usage.UserID,
		OrderID:  usage.OrderID,
		Amount:   usage.Amount,
		Currency: usage.Currency,
		UsedAt:   usage.UsedAt,
	})
	if err != nil {
		// The usage record is the source of truth; a lost event is
		// recoverable downstream.
		e.logger(ctx, "redemption_event_publish_failed", map[string]any{
			"couponId": usage.CouponID,
			"orderId":  usage.OrderID,
			"error":    err.Error(),
		})
	}
}

func discountRuleCandidate(rule domain.DiscountRule) ruleCandidate {
	return ruleCandidate{
		ID:          rule.ID,
		Name:        rule.Name,
		Source:      domain.RuleSourceDiscount,
		Priority:    rule.Priority,
		Stackable:   rule.Stackable,
		CouponID:    rule.CouponID,
		Conditions:  rule.Conditions,
		Modifiers:   rule.Modifiers,
		CampaignIDs: rule.CampaignIDs,
		Active:      rule.Active && rule.DeletedAt == nil,
		ValidFrom:   rule.ValidFrom,
		ValidUntil:  rule.ValidUntil,
	}
}

func variantRuleCandidate(rule domain.VariantPricingRule) ruleCandidate {
	return ruleCandidate{
		ID:          rule.ID,
		Name:        rule.Name,
		Source:      domain.RuleSourceVariant,
		Priority:    rule.Priority,
		Conditions:  rule.Conditions,
		Modifiers:   rule.Modifiers,
		CampaignIDs: rule.CampaignIDs,
		Active:      rule.Active && rule.DeletedAt == nil,
		ValidFrom:   rule.ValidFrom,
		ValidUntil:  rule.ValidUntil,
	}
}

func couponCandidate(coupon domain.Coupon) ruleCandidate {
	return ruleCandidate{
		ID:          coupon.ID,
		Name:        coupon.Code,
		Source:      domain.RuleSourceCoupon,
		Priority:    coupon.Priority,
		Stackable:   coupon.Stackable,
		CouponID:    coupon.ID,
		CouponCode:  coupon.NormalizedCode(),
		Conditions:  coupon.Conditions,
		Modifiers:   coupon.Modifiers,
		CampaignIDs: coupon.CampaignIDs,
		Active:      coupon.Active && coupon.DeletedAt == nil,
		ValidFrom:   coupon.ValidFrom,
		ValidUntil:  coupon.ValidUntil,
	}
}

func buildAppliedRules(order []string, meta map[string]ruleCandidate, amounts map[string]scaledAmount) []AppliedRule {
	applied := make([]AppliedRule, 0, len(order))
	for _, id := range order {
		candidate := meta[id]
		applied = append(applied, AppliedRule{
			RuleID:     id,
			Source:     candidate.Source,
			Name:       candidate.Name,
			CouponCode: candidate.CouponCode,
			// Negative when the rule raised the total (a fixed_price
			// override or a surcharge modifier).
			Amount: amounts[id].roundSigned(),
		})
	}
	return applied
}

func applyWarning(ruleID string, err error) PricingWarning {
	code := domain.WarningMalformedRule
	if errors.Is(err, ErrCurrencyMismatch) {
		code = domain.WarningCurrencyMismatch
	}
	return PricingWarning{RuleID: ruleID, Code: code, Message: err.Error()}
}

func sumScaled(values []scaledAmount) scaledAmount {
	var total scaledAmount
	for _, v := range values {
		total += v
	}
	return total
}

// allocateByWeight distributes an amount across weights proportionally, with
// largest-remainder tie-breaking so the allocations always sum to the amount.
// Negative amounts allocate as surcharges by mirroring the positive split.
func allocateByWeight(amount int64, weights []int64) []int64 {
	if len(weights) == 0 {
		return nil
	}
	if amount < 0 {
		allocations := allocateByWeight(-amount, weights)
		for i := range allocations {
			allocations[i] = -allocations[i]
		}
		return allocations
	}
	allocations := make([]int64, len(weights))
	if amount == 0 {
		return allocations
	}
	totalWeight := int64(0)
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		base := amount / int64(len(weights))
		remainder := amount % int64(len(weights))
		for i := range weights {
			allocations[i] = base
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
		}
		return allocations
	}

	remainderPairs := make([]struct {
		idx       int
		remainder int64
	}, len(weights))

	distributed := int64(0)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		share := (amount * w) / totalWeight
		allocations[i] = share
		distributed += share
		remainderPairs[i] = struct {
			idx       int
			remainder int64
		}{idx: i, remainder: (amount * w) % totalWeight}
	}

	remainder := amount - distributed
	if remainder <= 0 {
		return allocations
	}

	sort.SliceStable(remainderPairs, func(i, j int) bool {
		if remainderPairs[i].remainder == remainderPairs[j].remainder {
			return remainderPairs[i].idx < remainderPairs[j].idx
		}
		return remainderPairs[i].remainder > remainderPairs[j].remainder
	})

	for _, entry := range remainderPairs {
		if remainder == 0 {
			break
		}
		allocations[entry.idx]++
		remainder--
	}

	return allocations
}

// wrapStoreError maps persistence failures onto the hard-error sentinel so a
// storage outage never produces guessed pricing.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
