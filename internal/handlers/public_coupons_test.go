package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/services"
)

type stubCouponService struct {
	getPublicFn func(ctx context.Context, code string) (services.CouponAvailability, error)
	listFn      func(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[domain.Coupon], error)
	createFn    func(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error)
	updateFn    func(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error)
	deleteFn    func(ctx context.Context, couponID string) error
	usageFn     func(ctx context.Context, couponID string, pager domain.Pagination) (domain.CursorPage[domain.CouponUsage], error)
}

func (s *stubCouponService) GetPublicCoupon(ctx context.Context, code string) (services.CouponAvailability, error) {
	if s.getPublicFn == nil {
		return services.CouponAvailability{}, nil
	}
	return s.getPublicFn(ctx, code)
}

func (s *stubCouponService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Coupon]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
	if s.createFn == nil {
		return domain.Coupon{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
	if s.updateFn == nil {
		return domain.Coupon{}, nil
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, couponID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, couponID)
}

func (s *stubCouponService) ListCouponUsage(ctx context.Context, couponID string, pager domain.Pagination) (domain.CursorPage[domain.CouponUsage], error) {
	if s.usageFn == nil {
		return domain.CursorPage[domain.CouponUsage]{}, nil
	}
	return s.usageFn(ctx, couponID, pager)
}

var _ services.CouponService = (*stubCouponService)(nil)

func publicCouponRouter(h *PublicCouponHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/public", func(group chi.Router) {
		h.Routes(group)
	})
	return router
}

func TestGetPublicCoupon(t *testing.T) {
	validUntil := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	svc := &stubCouponService{
		getPublicFn: func(_ context.Context, code string) (services.CouponAvailability, error) {
			if code != "SAVE10" {
				t.Fatalf("unexpected code %q", code)
			}
			return services.CouponAvailability{
				Code:        "save10",
				Description: "10% off",
				Active:      true,
				Redeemable:  true,
				ValidUntil:  &validUntil,
			}, nil
		},
	}
	router := publicCouponRouter(NewPublicCouponHandlers(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/public/coupons/SAVE10", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload couponAvailabilityPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Code != "save10" || !payload.Redeemable {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.ValidUntil == nil {
		t.Fatal("valid_until missing")
	}
}

func TestGetPublicCouponNotFound(t *testing.T) {
	svc := &stubCouponService{
		getPublicFn: func(context.Context, string) (services.CouponAvailability, error) {
			return services.CouponAvailability{}, services.ErrCouponNotFound
		},
	}
	router := publicCouponRouter(NewPublicCouponHandlers(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/public/coupons/missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetPublicCouponRateLimited(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, time.Minute, func() time.Time { return now })
	svc := &stubCouponService{
		getPublicFn: func(context.Context, string) (services.CouponAvailability, error) {
			return services.CouponAvailability{Code: "save10"}, nil
		},
	}
	router := publicCouponRouter(NewPublicCouponHandlers(svc, limiter))

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/public/coupons/save10", nil)
		req.Header.Set("X-Customer-ID", "cust_1")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}
