package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veloura/api/internal/platform/httpx"
	"github.com/veloura/api/internal/repositories"
	"github.com/veloura/api/internal/services"
)

// PublicCouponHandlers exposes the unauthenticated coupon availability lookup.
type PublicCouponHandlers struct {
	coupons services.CouponService
	limiter RateLimiter
}

// NewPublicCouponHandlers constructs a new PublicCouponHandlers instance.
func NewPublicCouponHandlers(coupons services.CouponService, limiter RateLimiter) *PublicCouponHandlers {
	return &PublicCouponHandlers{
		coupons: coupons,
		limiter: limiter,
	}
}

// Routes registers the /public coupon endpoints.
func (h *PublicCouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/coupons/{code}", h.getCoupon)
}

func (h *PublicCouponHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many coupon lookups", http.StatusTooManyRequests))
		return
	}

	availability, err := h.coupons.GetPublicCoupon(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writePublicCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, couponAvailabilityPayload{
		Code:        availability.Code,
		Description: availability.Description,
		Active:      availability.Active,
		Redeemable:  availability.Redeemable,
		Reason:      availability.Reason,
		ValidFrom:   formatTimePtr(availability.ValidFrom),
		ValidUntil:  formatTimePtr(availability.ValidUntil),
	})
}

type couponAvailabilityPayload struct {
	Code        string  `json:"code"`
	Description string  `json:"description,omitempty"`
	Active      bool    `json:"active"`
	Redeemable  bool    `json:"redeemable"`
	Reason      string  `json:"reason,omitempty"`
	ValidFrom   *string `json:"valid_from,omitempty"`
	ValidUntil  *string `json:"valid_until,omitempty"`
}

func writePublicCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponServiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon code is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("coupon_store_unavailable", "coupon store unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to look up coupon", http.StatusInternalServerError))
	}
}
