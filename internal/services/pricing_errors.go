package services

import "errors"

// Pricing pipeline sentinels. Handlers map these onto HTTP problem responses.
var (
	// ErrMalformedRule marks a rule whose condition or modifier shape cannot
	// be evaluated. At admin write time it rejects the payload; at evaluation
	// time the rule is skipped with a warning instead.
	ErrMalformedRule = errors.New("pricing engine: malformed rule")

	// ErrCurrencyMismatch marks an evaluation context whose currency cannot
	// be processed at all (unknown ISO code). Per-rule currency mismatches
	// degrade to warnings, they do not raise this error.
	ErrCurrencyMismatch = errors.New("pricing engine: currency mismatch")

	// ErrRedemptionConflict is returned by finalize when a coupon commit
	// loses the race against a usage cap.
	ErrRedemptionConflict = errors.New("pricing engine: coupon redemption conflict")

	// ErrStoreUnavailable is returned when the backing store cannot answer
	// and the pipeline must fail closed.
	ErrStoreUnavailable = errors.New("pricing engine: rule store unavailable")
)

var (
	ErrPricingEngineRuleRepositoryMissing     = errors.New("pricing engine: rule repository is not configured")
	ErrPricingEngineCouponRepositoryMissing   = errors.New("pricing engine: coupon repository is not configured")
	ErrPricingEngineCampaignResolverMissing   = errors.New("pricing engine: campaign resolver is not configured")
	ErrPricingEngineLedgerMissing             = errors.New("pricing engine: redemption ledger is not configured")
	ErrPricingEngineOrderIDMissing            = errors.New("pricing engine: order id is required to finalize")
	ErrRedemptionLedgerRepositoryMissing      = errors.New("redemption ledger: repository is not configured")
	ErrRedemptionLedgerCouponRepositoryMissing = errors.New("redemption ledger: coupon repository is not configured")
	ErrRedemptionLedgerInvalidInput           = errors.New("redemption ledger: invalid input")
	ErrCouponServiceRepositoryMissing         = errors.New("coupon service: repository is not configured")
	ErrCouponServiceInvalidInput              = errors.New("coupon service: invalid input")
	ErrCouponNotFound                         = errors.New("coupon service: coupon not found")
	ErrCouponCodeConflict                     = errors.New("coupon service: coupon code already in use")
	ErrRuleServiceRepositoryMissing           = errors.New("rule service: repository is not configured")
	ErrRuleServiceInvalidInput                = errors.New("rule service: invalid input")
	ErrRuleNotFound                           = errors.New("rule service: rule not found")
	ErrCampaignServiceRepositoryMissing       = errors.New("campaign service: repository is not configured")
	ErrCampaignServiceInvalidInput            = errors.New("campaign service: invalid input")
	ErrCampaignNotFound                       = errors.New("campaign service: campaign not found")
	ErrCampaignInvalidTransition              = errors.New("campaign service: invalid status transition")
	ErrSystemServiceHealthRepositoryMissing   = errors.New("system service: health repository is not configured")
)
