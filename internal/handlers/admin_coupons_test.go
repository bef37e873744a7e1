package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/platform/pagination"
	"github.com/veloura/api/internal/services"
)

func adminCouponRouter(h *AdminCouponHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", func(group chi.Router) {
		h.Routes(group)
	})
	return router
}

func TestCreateCoupon(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	svc := &stubCouponService{
		createFn: func(_ context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
			coupon := cmd.Coupon
			if coupon.Code != "SAVE10" {
				t.Fatalf("unexpected code %q", coupon.Code)
			}
			if coupon.MaxUses == nil || *coupon.MaxUses != 100 {
				t.Fatalf("max uses not decoded: %+v", coupon.MaxUses)
			}
			if len(coupon.Modifiers) != 1 || coupon.Modifiers[0].Kind != domain.ModifierPercentage {
				t.Fatalf("modifiers not decoded: %+v", coupon.Modifiers)
			}
			coupon.ID = "cpn_1"
			coupon.CreatedAt = now
			coupon.UpdatedAt = now
			return coupon, nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	body := `{
		"code": "SAVE10",
		"description": "10% off",
		"active": true,
		"max_uses": 100,
		"modifiers": [{"kind": "percentage", "basis_points": 1000}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/admin/coupons/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload couponPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.ID != "cpn_1" || payload.Code != "save10" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCreateCouponCodeConflict(t *testing.T) {
	svc := &stubCouponService{
		createFn: func(context.Context, services.UpsertCouponCommand) (domain.Coupon, error) {
			return domain.Coupon{}, services.ErrCouponCodeConflict
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/admin/coupons/", strings.NewReader(`{"code": "save10"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "coupon_code_conflict" {
		t.Fatalf("expected coupon_code_conflict, got %v", body["error"])
	}
}

func TestUpdateCouponUsesPathID(t *testing.T) {
	svc := &stubCouponService{
		updateFn: func(_ context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
			if cmd.Coupon.ID != "cpn_1" {
				t.Fatalf("path id not applied: %q", cmd.Coupon.ID)
			}
			return cmd.Coupon, nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodPut, "/admin/coupons/cpn_1", strings.NewReader(`{"code": "save10"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteCoupon(t *testing.T) {
	deleted := ""
	svc := &stubCouponService{
		deleteFn: func(_ context.Context, couponID string) error {
			deleted = couponID
			return nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodDelete, "/admin/coupons/cpn_1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if deleted != "cpn_1" {
		t.Fatalf("unexpected coupon id %q", deleted)
	}
}

func TestDeleteCouponNotFound(t *testing.T) {
	svc := &stubCouponService{
		deleteFn: func(context.Context, string) error {
			return services.ErrCouponNotFound
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodDelete, "/admin/coupons/missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListCouponsFilter(t *testing.T) {
	var captured services.CouponListFilter
	svc := &stubCouponService{
		listFn: func(_ context.Context, filter services.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
			captured = filter
			return domain.CursorPage[domain.Coupon]{
				Items:         []domain.Coupon{{ID: "cpn_1", Code: "save10"}},
				NextPageToken: "token",
			}, nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"save10", "cpn_0"}})
	if err != nil {
		t.Fatalf("EncodeToken error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/coupons/?code_prefix=save&active_only=true&page_size=10&page_token="+token, nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.CodePrefix != "save" || !captured.ActiveOnly {
		t.Fatalf("filter not decoded: %+v", captured)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != token {
		t.Fatalf("pagination not decoded: %+v", captured.Pagination)
	}

	var payload listCouponsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload.Coupons) != 1 || payload.NextPageToken != "token" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestListCouponsRejectsGarbledPageToken(t *testing.T) {
	svc := &stubCouponService{
		listFn: func(_ context.Context, _ services.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
			t.Fatal("service must not be called for a garbled page token")
			return domain.CursorPage[domain.Coupon]{}, nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodGet, "/admin/coupons/?page_token=%21%21%21", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListCouponUsage(t *testing.T) {
	usedAt := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	svc := &stubCouponService{
		usageFn: func(_ context.Context, couponID string, _ domain.Pagination) (domain.CursorPage[domain.CouponUsage], error) {
			if couponID != "cpn_1" {
				t.Fatalf("unexpected coupon id %q", couponID)
			}
			return domain.CursorPage[domain.CouponUsage]{
				Items: []domain.CouponUsage{
					{ID: "cpn_1_ord_1", CouponID: "cpn_1", OrderID: "ord_1", Amount: 500, Currency: "USD", UsedAt: usedAt},
				},
			}, nil
		},
	}
	router := adminCouponRouter(NewAdminCouponHandlers(svc))

	req := httptest.NewRequest(http.MethodGet, "/admin/coupons/cpn_1/usage", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload listCouponUsageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(payload.Usage) != 1 || payload.Usage[0].OrderID != "ord_1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
