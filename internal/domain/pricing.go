package domain

import "time"

// EvaluationContext is the immutable cart snapshot rules are evaluated
// against. Amounts are minor units of Currency.
type EvaluationContext struct {
	Currency       string
	CustomerID     string
	CustomerGroups []string
	// CustomerPriority is the customer's loyalty tier, matched by priority
	// conditions.
	CustomerPriority int64
	Zone             string
	Channel          string
	// CouponCodes are the codes the shopper presented, matched
	// case-insensitively against active coupons.
	CouponCodes []string
	Timestamp   time.Time
	Lines       []ContextLine
}

// Subtotal returns the undiscounted cart total in minor units.
func (c EvaluationContext) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.UnitPrice * line.Quantity
	}
	return total
}

// TotalQuantity returns the summed quantity across all lines.
func (c EvaluationContext) TotalQuantity() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// ContextLine is one cart line in the evaluation snapshot.
type ContextLine struct {
	LineID        string
	ProductID     string
	VariantID     string
	CategoryIDs   []string
	BrandID       string
	CollectionIDs []string
	// Attributes carries variant attribute values keyed by attribute name,
	// inspected by attribute_value conditions.
	Attributes map[string]string
	// Size is the variant's size attribute, inspected by size_based
	// conditions.
	Size      string
	Quantity  int64
	UnitPrice int64
}

// RuleSource distinguishes where an applied adjustment came from.
type RuleSource string

const (
	// RuleSourceDiscount marks a cart-scoped discount rule.
	RuleSourceDiscount RuleSource = "discount_rule"
	// RuleSourceVariant marks a line-scoped variant pricing rule.
	RuleSourceVariant RuleSource = "variant_pricing_rule"
	// RuleSourceCoupon marks a shopper-presented coupon.
	RuleSourceCoupon RuleSource = "coupon"
)

// PricingResult is the outcome of pricing a cart: per-line adjusted prices,
// the ordered set of applied rules, and the final total.
type PricingResult struct {
	Currency     string
	Subtotal     int64
	Discount     int64
	Total        int64
	Lines        []LinePricing
	AppliedRules []AppliedRule
	Warnings     []PricingWarning
	// FinalizedOrderID is set when the result was committed for an order.
	FinalizedOrderID string
}

// LinePricing reports the priced outcome for one cart line.
type LinePricing struct {
	LineID            string
	Quantity          int64
	UnitPrice         int64
	AdjustedUnitPrice int64
	Subtotal          int64
	Discount          int64
	Total             int64
	AppliedRuleIDs    []string
}

// AppliedRule records one rule's contribution to the result, in application
// order.
type AppliedRule struct {
	RuleID     string
	Source     RuleSource
	Name       string
	CouponCode string
	// Amount is the discount the rule contributed, in minor units.
	Amount int64
}

// WarningCode classifies non-fatal evaluation problems.
type WarningCode string

const (
	// WarningMalformedRule marks a rule excluded for a shape violation.
	WarningMalformedRule WarningCode = "malformed_rule"
	// WarningCurrencyMismatch marks a rule excluded for a currency conflict.
	WarningCurrencyMismatch WarningCode = "currency_mismatch"
	// WarningRedemptionDenied marks a coupon excluded by redemption limits.
	WarningRedemptionDenied WarningCode = "redemption_denied"
)

// PricingWarning reports a rule that was excluded without failing the run.
type PricingWarning struct {
	RuleID  string
	Code    WarningCode
	Message string
}

// RedemptionDecision is the outcome of a read-only redemption check.
type RedemptionDecision string

const (
	// RedemptionAllowed means the coupon can still be redeemed.
	RedemptionAllowed RedemptionDecision = "allowed"
	// RedemptionDeniedGlobalLimit means the coupon's total cap is exhausted.
	RedemptionDeniedGlobalLimit RedemptionDecision = "denied_global_limit"
	// RedemptionDeniedUserLimit means this customer's cap is exhausted.
	RedemptionDeniedUserLimit RedemptionDecision = "denied_user_limit"
)
