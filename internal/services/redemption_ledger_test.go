package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

func testLedger(t *testing.T, redemptions repositories.RedemptionRepository, coupons repositories.CouponRepository) RedemptionLedger {
	t.Helper()
	ledger, err := NewRedemptionLedger(RedemptionLedgerDeps{
		Redemptions: redemptions,
		Coupons:     coupons,
		Now:         func() time.Time { return time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewRedemptionLedger error: %v", err)
	}
	return ledger
}

func cappedCoupon() domain.Coupon {
	return domain.Coupon{
		ID:             "cpn_1",
		Code:           "CAPPED",
		Active:         true,
		MaxUses:        int64Ptr(5),
		MaxUsesPerUser: int64Ptr(2),
	}
}

func TestLedgerCheckDecisions(t *testing.T) {
	coupons := &fakeCouponRepo{byID: map[string]domain.Coupon{"cpn_1": cappedCoupon()}}

	tests := []struct {
		name   string
		counts repositories.RedemptionCounts
		want   domain.RedemptionDecision
	}{
		{name: "allowed under both caps", counts: repositories.RedemptionCounts{Total: 2, ByUser: 1}, want: domain.RedemptionAllowed},
		{name: "global cap reached", counts: repositories.RedemptionCounts{Total: 5, ByUser: 0}, want: domain.RedemptionDeniedGlobalLimit},
		{name: "user cap reached", counts: repositories.RedemptionCounts{Total: 3, ByUser: 2}, want: domain.RedemptionDeniedUserLimit},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			redemptions := &fakeRedemptionRepo{counts: map[string]repositories.RedemptionCounts{"cpn_1": tc.counts}}
			ledger := testLedger(t, redemptions, coupons)

			decision, err := ledger.Check(context.Background(), "cpn_1", "user_1")
			if err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if decision != tc.want {
				t.Fatalf("want %v, got %v", tc.want, decision)
			}
		})
	}
}

func TestLedgerCheckUncappedSkipsCounts(t *testing.T) {
	coupons := &fakeCouponRepo{byID: map[string]domain.Coupon{
		"cpn_free": {ID: "cpn_free", Code: "FREE", Active: true},
	}}
	redemptions := &fakeRedemptionRepo{countsErr: errFakeUnavailable}
	ledger := testLedger(t, redemptions, coupons)

	decision, err := ledger.Check(context.Background(), "cpn_free", "user_1")
	if err != nil {
		t.Fatalf("uncapped coupon should not need counts: %v", err)
	}
	if decision != domain.RedemptionAllowed {
		t.Fatalf("want allowed, got %v", decision)
	}
}

func TestLedgerCheckUnknownCoupon(t *testing.T) {
	ledger := testLedger(t, &fakeRedemptionRepo{}, &fakeCouponRepo{})
	if _, err := ledger.Check(context.Background(), "cpn_missing", ""); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("want ErrCouponNotFound, got %v", err)
	}
}

func TestLedgerCommitPassesCapsToRepository(t *testing.T) {
	coupons := &fakeCouponRepo{byID: map[string]domain.Coupon{"cpn_1": cappedCoupon()}}
	var captured repositories.CommitRedemptionRequest
	redemptions := &fakeRedemptionRepo{commitFn: func(req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
		captured = req
		return domain.CouponUsage{ID: "cu_1", CouponID: req.CouponID, OrderID: req.OrderID, UsedAt: req.Now}, nil
	}}
	ledger := testLedger(t, redemptions, coupons)

	usage, err := ledger.Commit(context.Background(), CommitRedemptionCommand{
		CouponID: "cpn_1",
		UserID:   "user_1",
		OrderID:  "order_1",
		Amount:   1000,
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if usage.ID != "cu_1" {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if captured.MaxUses == nil || *captured.MaxUses != 5 || captured.MaxUsesPerUser == nil || *captured.MaxUsesPerUser != 2 {
		t.Fatalf("caps not forwarded: %+v", captured)
	}
	if captured.Currency != "USD" {
		t.Fatalf("currency should be normalised, got %q", captured.Currency)
	}
	if captured.Now.IsZero() {
		t.Fatalf("commit timestamp missing")
	}
}

func TestLedgerCommitLimitBecomesConflict(t *testing.T) {
	coupons := &fakeCouponRepo{byID: map[string]domain.Coupon{"cpn_1": cappedCoupon()}}
	redemptions := &fakeRedemptionRepo{commitFn: func(req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
		return domain.CouponUsage{}, repositories.NewRedemptionError(repositories.RedemptionErrorGlobalLimit, "max uses reached", nil)
	}}
	ledger := testLedger(t, redemptions, coupons)

	if _, err := ledger.Commit(context.Background(), CommitRedemptionCommand{CouponID: "cpn_1", OrderID: "order_1"}); !errors.Is(err, ErrRedemptionConflict) {
		t.Fatalf("want ErrRedemptionConflict, got %v", err)
	}
}

func TestLedgerCommitFailsClosedOnOutage(t *testing.T) {
	coupons := &fakeCouponRepo{byID: map[string]domain.Coupon{"cpn_1": cappedCoupon()}}
	redemptions := &fakeRedemptionRepo{commitFn: func(req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
		return domain.CouponUsage{}, errFakeUnavailable
	}}
	ledger := testLedger(t, redemptions, coupons)

	if _, err := ledger.Commit(context.Background(), CommitRedemptionCommand{CouponID: "cpn_1", OrderID: "order_1"}); !errors.Is(err, ErrRedemptionConflict) {
		t.Fatalf("an outage must deny, not allow: got %v", err)
	}
}

func TestLedgerCommitValidatesInput(t *testing.T) {
	ledger := testLedger(t, &fakeRedemptionRepo{}, &fakeCouponRepo{})

	if _, err := ledger.Commit(context.Background(), CommitRedemptionCommand{OrderID: "order_1"}); !errors.Is(err, ErrRedemptionLedgerInvalidInput) {
		t.Fatalf("missing coupon id: want invalid input, got %v", err)
	}
	if _, err := ledger.Commit(context.Background(), CommitRedemptionCommand{CouponID: "cpn_1"}); !errors.Is(err, ErrRedemptionLedgerInvalidInput) {
		t.Fatalf("missing order id: want invalid input, got %v", err)
	}
	if _, err := ledger.Commit(context.Background(), CommitRedemptionCommand{CouponID: "cpn_1", OrderID: "order_1", Amount: -1}); !errors.Is(err, ErrRedemptionLedgerInvalidInput) {
		t.Fatalf("negative amount: want invalid input, got %v", err)
	}
}
