package services

import (
	"context"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Condition          = domain.Condition
	ConditionType      = domain.ConditionType
	ConditionOperator  = domain.ConditionOperator
	Modifier           = domain.Modifier
	ModifierKind       = domain.ModifierKind
	TierEntry          = domain.TierEntry
	DiscountRule       = domain.DiscountRule
	VariantPricingRule = domain.VariantPricingRule
	Coupon             = domain.Coupon
	CouponUsage        = domain.CouponUsage
	Campaign           = domain.Campaign
	CampaignStatus     = domain.CampaignStatus
	EvaluationContext  = domain.EvaluationContext
	ContextLine        = domain.ContextLine
	PricingResult      = domain.PricingResult
	LinePricing        = domain.LinePricing
	AppliedRule        = domain.AppliedRule
	PricingWarning     = domain.PricingWarning
	RedemptionDecision = domain.RedemptionDecision
	SystemHealthReport = domain.SystemHealthReport
)

// PricingService runs the evaluation pipeline over a cart snapshot.
type PricingService interface {
	// PreviewPricing evaluates the context without consuming coupon
	// redemptions. Safe to call repeatedly.
	PreviewPricing(ctx context.Context, evalCtx EvaluationContext) (PricingResult, error)
	// FinalizePricing evaluates the context and commits every included
	// coupon through the redemption ledger. Any redemption conflict fails
	// the whole call.
	FinalizePricing(ctx context.Context, cmd FinalizePricingCommand) (PricingResult, error)
}

// FinalizePricingCommand carries a finalize request for an order.
type FinalizePricingCommand struct {
	Context EvaluationContext
	OrderID string
}

// RedemptionLedger tracks coupon usage against configured caps.
type RedemptionLedger interface {
	// Check reports whether the coupon can still be redeemed. The answer is
	// advisory: it may be stale by the time a commit runs.
	Check(ctx context.Context, couponID string, userID string) (RedemptionDecision, error)
	// Commit atomically records a redemption. Re-committing the same
	// (coupon, order) pair is idempotent.
	Commit(ctx context.Context, cmd CommitRedemptionCommand) (CouponUsage, error)
}

// CommitRedemptionCommand records one coupon redemption for an order.
type CommitRedemptionCommand struct {
	CouponID string
	UserID   string
	OrderID  string
	Amount   int64
	Currency string
}

// CouponService exposes coupon lookup and back-office management.
type CouponService interface {
	GetPublicCoupon(ctx context.Context, code string) (CouponAvailability, error)
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeleteCoupon(ctx context.Context, couponID string) error
	ListCouponUsage(ctx context.Context, couponID string, pager Pagination) (domain.CursorPage[CouponUsage], error)
}

// CouponAvailability is the public projection of a coupon's redeemability.
type CouponAvailability struct {
	Code        string
	Description string
	Active      bool
	Redeemable  bool
	Reason      string
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// UpsertCouponCommand carries coupon create/update payloads.
type UpsertCouponCommand struct {
	Coupon Coupon
}

// CouponListFilter scopes coupon listings.
type CouponListFilter struct {
	CodePrefix string
	ActiveOnly bool
	Pagination Pagination
}

// RuleService manages discount and variant pricing rule definitions.
type RuleService interface {
	CreateDiscountRule(ctx context.Context, cmd UpsertDiscountRuleCommand) (DiscountRule, error)
	UpdateDiscountRule(ctx context.Context, cmd UpsertDiscountRuleCommand) (DiscountRule, error)
	DeleteDiscountRule(ctx context.Context, ruleID string) error
	GetDiscountRule(ctx context.Context, ruleID string) (DiscountRule, error)
	ListDiscountRules(ctx context.Context, filter RuleListFilter) (domain.CursorPage[DiscountRule], error)

	CreateVariantRule(ctx context.Context, cmd UpsertVariantRuleCommand) (VariantPricingRule, error)
	UpdateVariantRule(ctx context.Context, cmd UpsertVariantRuleCommand) (VariantPricingRule, error)
	DeleteVariantRule(ctx context.Context, ruleID string) error
	GetVariantRule(ctx context.Context, ruleID string) (VariantPricingRule, error)
	ListVariantRules(ctx context.Context, filter RuleListFilter) (domain.CursorPage[VariantPricingRule], error)
}

// UpsertDiscountRuleCommand carries discount rule create/update payloads.
type UpsertDiscountRuleCommand struct {
	Rule DiscountRule
}

// UpsertVariantRuleCommand carries variant rule create/update payloads.
type UpsertVariantRuleCommand struct {
	Rule VariantPricingRule
}

// RuleListFilter scopes rule listings.
type RuleListFilter struct {
	CampaignID string
	ActiveOnly bool
	Pagination Pagination
}

// CampaignService manages campaign lifecycle and computes effective eligibility.
type CampaignService interface {
	CreateCampaign(ctx context.Context, cmd UpsertCampaignCommand) (Campaign, error)
	UpdateCampaign(ctx context.Context, cmd UpsertCampaignCommand) (Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignListFilter) (domain.CursorPage[Campaign], error)
	// Transition moves a campaign along the authored lifecycle graph.
	Transition(ctx context.Context, cmd CampaignTransitionCommand) (Campaign, error)
	// EligibleCampaigns reports, for each requested campaign, whether it can
	// contribute rules at the given instant and scope.
	EligibleCampaigns(ctx context.Context, campaignIDs []string, at time.Time, zone string, channel string) (map[string]bool, error)
}

// UpsertCampaignCommand carries campaign create/update payloads.
type UpsertCampaignCommand struct {
	Campaign Campaign
}

// CampaignTransitionCommand requests a lifecycle transition.
type CampaignTransitionCommand struct {
	CampaignID string
	Target     CampaignStatus
}

// CampaignListFilter scopes campaign listings.
type CampaignListFilter struct {
	Status     []CampaignStatus
	Zone       string
	Channel    string
	Pagination Pagination
}

// SystemService surfaces operational health for probes.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// RedemptionCommittedMessage is the event payload emitted after a redemption commit.
type RedemptionCommittedMessage struct {
	UsageID  string    `json:"usageId"`
	CouponID string    `json:"couponId"`
	UserID   string    `json:"userId,omitempty"`
	OrderID  string    `json:"orderId"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	UsedAt   time.Time `json:"usedAt"`
}

// RedemptionEventPublisher emits redemption-committed events for downstream consumers.
type RedemptionEventPublisher interface {
	PublishRedemptionCommitted(ctx context.Context, message RedemptionCommittedMessage) (string, error)
}

// EventLogger captures structured diagnostics emitted by services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)
