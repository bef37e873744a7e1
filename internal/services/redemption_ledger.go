package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

// redemptionLedger enforces coupon usage caps on top of the redemption
// repository. Reads are advisory; the repository's transactional commit is
// the only authority on whether a redemption stands.
type redemptionLedger struct {
	redemptions repositories.RedemptionRepository
	coupons     repositories.CouponRepository
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
}

type RedemptionLedgerDeps struct {
	Redemptions repositories.RedemptionRepository
	Coupons     repositories.CouponRepository
	Now         func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

func NewRedemptionLedger(deps RedemptionLedgerDeps) (RedemptionLedger, error) {
	if deps.Redemptions == nil {
		return nil, ErrRedemptionLedgerRepositoryMissing
	}
	if deps.Coupons == nil {
		return nil, ErrRedemptionLedgerCouponRepositoryMissing
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &redemptionLedger{
		redemptions: deps.Redemptions,
		coupons:     deps.Coupons,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

// Check compares current counts against the coupon's caps. The counts may be
// stale by the time a commit runs; callers must treat an allowed answer as a
// hint, never a reservation.
func (l *redemptionLedger) Check(ctx context.Context, couponID string, userID string) (domain.RedemptionDecision, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.RedemptionDeniedGlobalLimit, fmt.Errorf("%w: coupon id is required", ErrRedemptionLedgerInvalidInput)
	}

	coupon, err := l.coupons.FindByID(ctx, couponID)
	if err != nil {
		if isNotFound(err) {
			return domain.RedemptionDeniedGlobalLimit, fmt.Errorf("%w: %s", ErrCouponNotFound, couponID)
		}
		return domain.RedemptionDeniedGlobalLimit, wrapStoreError(err)
	}

	if coupon.MaxUses == nil && coupon.MaxUsesPerUser == nil {
		return domain.RedemptionAllowed, nil
	}

	counts, err := l.redemptions.Counts(ctx, couponID, userID)
	if err != nil {
		return domain.RedemptionDeniedGlobalLimit, wrapStoreError(err)
	}
	if coupon.MaxUses != nil && counts.Total >= *coupon.MaxUses {
		return domain.RedemptionDeniedGlobalLimit, nil
	}
	if coupon.MaxUsesPerUser != nil && userID != "" && counts.ByUser >= *coupon.MaxUsesPerUser {
		return domain.RedemptionDeniedUserLimit, nil
	}
	return domain.RedemptionAllowed, nil
}

// Commit records one redemption through the repository's atomic path. A cap
// breach surfaces as ErrRedemptionConflict; a store outage is treated the
// same way so an outage can never mint unlimited redemptions.
func (l *redemptionLedger) Commit(ctx context.Context, cmd CommitRedemptionCommand) (CouponUsage, error) {
	couponID := strings.TrimSpace(cmd.CouponID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if couponID == "" || orderID == "" {
		return CouponUsage{}, fmt.Errorf("%w: coupon id and order id are required", ErrRedemptionLedgerInvalidInput)
	}
	if cmd.Amount < 0 {
		return CouponUsage{}, fmt.Errorf("%w: amount cannot be negative", ErrRedemptionLedgerInvalidInput)
	}

	coupon, err := l.coupons.FindByID(ctx, couponID)
	if err != nil {
		if isNotFound(err) {
			return CouponUsage{}, fmt.Errorf("%w: %s", ErrCouponNotFound, couponID)
		}
		return CouponUsage{}, l.failClosed(ctx, couponID, orderID, err)
	}

	usage, err := l.redemptions.Commit(ctx, repositories.CommitRedemptionRequest{
		CouponID:       couponID,
		UserID:         strings.TrimSpace(cmd.UserID),
		OrderID:        orderID,
		Amount:         cmd.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		MaxUses:        coupon.MaxUses,
		MaxUsesPerUser: coupon.MaxUsesPerUser,
		Now:            l.now(),
	})
	if err != nil {
		var redemptionErr *repositories.RedemptionError
		if errors.As(err, &redemptionErr) && redemptionErr.IsLimit() {
			return CouponUsage{}, fmt.Errorf("%w: %s", ErrRedemptionConflict, redemptionErr.Message)
		}
		return CouponUsage{}, l.failClosed(ctx, couponID, orderID, err)
	}

	l.logger(ctx, "redemption_committed", map[string]any{
		"couponId": couponID,
		"orderId":  orderID,
		"usageId":  usage.ID,
	})
	return usage, nil
}

// failClosed converts store failures during commit into conflicts. Denying a
// redemption under an outage is recoverable; over-redeeming is not.
func (l *redemptionLedger) failClosed(ctx context.Context, couponID, orderID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		l.logger(ctx, "redemption_commit_failed_closed", map[string]any{
			"couponId": couponID,
			"orderId":  orderID,
			"error":    err.Error(),
		})
		return fmt.Errorf("%w: store unavailable: %v", ErrRedemptionConflict, err)
	}
	return err
}
