package repositories

import (
	"context"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	DiscountRules() DiscountRuleRepository
	VariantRules() VariantRuleRepository
	Coupons() CouponRepository
	Campaigns() CampaignRepository
	Redemptions() RedemptionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DiscountRuleRepository persists cart-scoped discount rules.
type DiscountRuleRepository interface {
	Insert(ctx context.Context, rule domain.DiscountRule) error
	Update(ctx context.Context, rule domain.DiscountRule) error
	SoftDelete(ctx context.Context, ruleID string, deletedAt time.Time) error
	FindByID(ctx context.Context, ruleID string) (domain.DiscountRule, error)
	List(ctx context.Context, filter RuleListFilter) (domain.CursorPage[domain.DiscountRule], error)
	// ListCandidates returns the non-deleted rules eligible for evaluation.
	// Window and condition filtering happens in the resolver, not here.
	ListCandidates(ctx context.Context) ([]domain.DiscountRule, error)
}

// VariantRuleRepository persists line-scoped variant pricing rules.
type VariantRuleRepository interface {
	Insert(ctx context.Context, rule domain.VariantPricingRule) error
	Update(ctx context.Context, rule domain.VariantPricingRule) error
	SoftDelete(ctx context.Context, ruleID string, deletedAt time.Time) error
	FindByID(ctx context.Context, ruleID string) (domain.VariantPricingRule, error)
	List(ctx context.Context, filter RuleListFilter) (domain.CursorPage[domain.VariantPricingRule], error)
	ListCandidates(ctx context.Context) ([]domain.VariantPricingRule, error)
}

// CouponRepository maintains coupon definitions keyed by normalised code.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	SoftDelete(ctx context.Context, couponID string, deletedAt time.Time) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	// FindByCode resolves a coupon by its case-insensitive code.
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

// CampaignRepository persists campaign schedules and scope.
type CampaignRepository interface {
	Insert(ctx context.Context, campaign domain.Campaign) error
	Update(ctx context.Context, campaign domain.Campaign) error
	FindByID(ctx context.Context, campaignID string) (domain.Campaign, error)
	FindByIDs(ctx context.Context, campaignIDs []string) (map[string]domain.Campaign, error)
	List(ctx context.Context, filter CampaignListFilter) (domain.CursorPage[domain.Campaign], error)
}

// RedemptionRepository owns coupon usage counters and immutable usage records.
// Commit must be transactional: the caps check, the counter increment, and the
// usage record creation succeed or fail together.
type RedemptionRepository interface {
	// Counts returns the current global and per-user redemption tallies.
	// Reads are not transactional and may lag concurrent commits.
	Counts(ctx context.Context, couponID string, userID string) (RedemptionCounts, error)
	// Commit atomically records one redemption, enforcing the provided caps.
	// Committing the same (couponID, orderID) pair twice returns the original
	// usage without double-counting.
	Commit(ctx context.Context, req CommitRedemptionRequest) (domain.CouponUsage, error)
	ListUsage(ctx context.Context, couponID string, pager domain.Pagination) (domain.CursorPage[domain.CouponUsage], error)
}

// RedemptionCounts is a point-in-time snapshot of redemption tallies.
type RedemptionCounts struct {
	Total  int64
	ByUser int64
	ReadAt time.Time
}

// CommitRedemptionRequest carries one redemption commit with its caps.
type CommitRedemptionRequest struct {
	CouponID       string
	UserID         string
	OrderID        string
	Amount         int64
	Currency       string
	MaxUses        *int64
	MaxUsesPerUser *int64
	Now            time.Time
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// RuleListFilter scopes admin rule listings.
type RuleListFilter struct {
	CampaignID     string
	ActiveOnly     bool
	IncludeDeleted bool
	UpdatedRange   domain.RangeQuery[time.Time]
	Pagination     domain.Pagination
}

// CouponListFilter scopes admin coupon listings.
type CouponListFilter struct {
	CodePrefix     string
	ActiveOnly     bool
	IncludeDeleted bool
	Pagination     domain.Pagination
}

// CampaignListFilter scopes campaign listings.
type CampaignListFilter struct {
	Status     []domain.CampaignStatus
	Zone       string
	Channel    string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
