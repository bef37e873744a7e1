package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

const couponIDPrefix = "cpn_"

type couponService struct {
	coupons     repositories.CouponRepository
	redemptions repositories.RedemptionRepository
	ledger      RedemptionLedger
	idGen       func() string
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
}

type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Redemptions repositories.RedemptionRepository
	Ledger      RedemptionLedger
	IDGen       func() string
	Now         func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, ErrCouponServiceRepositoryMissing
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return couponIDPrefix + ulid.Make().String() }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		coupons:     deps.Coupons,
		redemptions: deps.Redemptions,
		ledger:      deps.Ledger,
		idGen:       idGen,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

// GetPublicCoupon resolves a coupon by code and reports whether it can
// currently be redeemed. The redeemable answer is advisory; the ledger's
// commit remains the authority at checkout.
func (s *couponService) GetPublicCoupon(ctx context.Context, code string) (CouponAvailability, error) {
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return CouponAvailability{}, fmt.Errorf("%w: coupon code is required", ErrCouponServiceInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isNotFound(err) {
			return CouponAvailability{}, fmt.Errorf("%w: %s", ErrCouponNotFound, normalized)
		}
		return CouponAvailability{}, wrapStoreError(err)
	}
	if coupon.DeletedAt != nil {
		return CouponAvailability{}, fmt.Errorf("%w: %s", ErrCouponNotFound, normalized)
	}

	availability := CouponAvailability{
		Code:        coupon.NormalizedCode(),
		Description: coupon.Description,
		Active:      coupon.Active,
		ValidFrom:   coupon.ValidFrom,
		ValidUntil:  coupon.ValidUntil,
	}

	now := s.now()
	switch {
	case !coupon.Active:
		availability.Reason = "inactive"
	case coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom):
		availability.Reason = "not_started"
	case coupon.ValidUntil != nil && now.After(*coupon.ValidUntil):
		availability.Reason = "expired"
	default:
		availability.Redeemable = true
	}

	if availability.Redeemable && s.ledger != nil {
		decision, err := s.ledger.Check(ctx, coupon.ID, "")
		if err != nil {
			return CouponAvailability{}, err
		}
		if decision != domain.RedemptionAllowed {
			availability.Redeemable = false
			availability.Reason = "usage_limit_reached"
		}
	}

	return availability, nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	page, err := s.coupons.List(ctx, repositories.CouponListFilter{
		CodePrefix: domain.NormalizeCouponCode(filter.CodePrefix),
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Coupon]{}, wrapStoreError(err)
	}
	return page, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon := cmd.Coupon
	if err := s.validateCoupon(&coupon); err != nil {
		return Coupon{}, err
	}

	if _, err := s.coupons.FindByCode(ctx, coupon.NormalizedCode()); err == nil {
		return Coupon{}, fmt.Errorf("%w: %s", ErrCouponCodeConflict, coupon.NormalizedCode())
	} else if !isNotFound(err) {
		return Coupon{}, wrapStoreError(err)
	}

	now := s.now()
	coupon.ID = s.idGen()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	coupon.DeletedAt = nil

	if err := s.coupons.Insert(ctx, coupon); err != nil {
		if isConflict(err) {
			return Coupon{}, fmt.Errorf("%w: %s", ErrCouponCodeConflict, coupon.NormalizedCode())
		}
		return Coupon{}, wrapStoreError(err)
	}
	s.logger(ctx, "coupon_created", map[string]any{"couponId": coupon.ID, "code": coupon.NormalizedCode()})
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	update := cmd.Coupon
	if strings.TrimSpace(update.ID) == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponServiceInvalidInput)
	}
	if err := s.validateCoupon(&update); err != nil {
		return Coupon{}, err
	}

	existing, err := s.coupons.FindByID(ctx, update.ID)
	if err != nil {
		if isNotFound(err) {
			return Coupon{}, fmt.Errorf("%w: %s", ErrCouponNotFound, update.ID)
		}
		return Coupon{}, wrapStoreError(err)
	}

	if existing.NormalizedCode() != update.NormalizedCode() {
		if other, err := s.coupons.FindByCode(ctx, update.NormalizedCode()); err == nil && other.ID != update.ID {
			return Coupon{}, fmt.Errorf("%w: %s", ErrCouponCodeConflict, update.NormalizedCode())
		} else if err != nil && !isNotFound(err) {
			return Coupon{}, wrapStoreError(err)
		}
	}

	update.CreatedAt = existing.CreatedAt
	update.DeletedAt = existing.DeletedAt
	update.UpdatedAt = s.now()

	if err := s.coupons.Update(ctx, update); err != nil {
		return Coupon{}, wrapStoreError(err)
	}
	return update, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return fmt.Errorf("%w: coupon id is required", ErrCouponServiceInvalidInput)
	}
	if err := s.coupons.SoftDelete(ctx, couponID, s.now()); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCouponNotFound, couponID)
		}
		return wrapStoreError(err)
	}
	s.logger(ctx, "coupon_deleted", map[string]any{"couponId": couponID})
	return nil
}

func (s *couponService) ListCouponUsage(ctx context.Context, couponID string, pager Pagination) (domain.CursorPage[CouponUsage], error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.CursorPage[CouponUsage]{}, fmt.Errorf("%w: coupon id is required", ErrCouponServiceInvalidInput)
	}
	if s.redemptions == nil {
		return domain.CursorPage[CouponUsage]{}, ErrRedemptionLedgerRepositoryMissing
	}
	page, err := s.redemptions.ListUsage(ctx, couponID, pager)
	if err != nil {
		return domain.CursorPage[CouponUsage]{}, wrapStoreError(err)
	}
	return page, nil
}

// validateCoupon rejects malformed coupon payloads before they reach the
// store, including modifier and condition shapes the evaluator would refuse.
func (s *couponService) validateCoupon(coupon *Coupon) error {
	coupon.Code = strings.TrimSpace(coupon.Code)
	if domain.NormalizeCouponCode(coupon.Code) == "" {
		return fmt.Errorf("%w: coupon code is required", ErrCouponServiceInvalidInput)
	}
	if coupon.ValidFrom != nil && coupon.ValidUntil != nil && coupon.ValidUntil.Before(*coupon.ValidFrom) {
		return fmt.Errorf("%w: validity window is inverted", ErrCouponServiceInvalidInput)
	}
	if coupon.MaxUses != nil && *coupon.MaxUses < 0 {
		return fmt.Errorf("%w: max uses cannot be negative", ErrCouponServiceInvalidInput)
	}
	if coupon.MaxUsesPerUser != nil && *coupon.MaxUsesPerUser < 0 {
		return fmt.Errorf("%w: max uses per user cannot be negative", ErrCouponServiceInvalidInput)
	}
	if err := validateConditions(coupon.Conditions, false); err != nil {
		return err
	}
	return validateModifiers(coupon.Modifiers, "")
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
