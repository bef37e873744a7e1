package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/platform/httpx"
	"github.com/veloura/api/internal/repositories"
	"github.com/veloura/api/internal/services"
)

// AdminCouponHandlers exposes back-office coupon management.
type AdminCouponHandlers struct {
	coupons services.CouponService
}

// NewAdminCouponHandlers constructs a new AdminCouponHandlers instance.
func NewAdminCouponHandlers(coupons services.CouponService) *AdminCouponHandlers {
	return &AdminCouponHandlers{coupons: coupons}
}

// Routes registers the coupon management endpoints.
func (h *AdminCouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/coupons", func(group chi.Router) {
		group.Get("/", h.listCoupons)
		group.Post("/", h.createCoupon)
		group.Put("/{couponID}", h.updateCoupon)
		group.Delete("/{couponID}", h.deleteCoupon)
		group.Get("/{couponID}/usage", h.listCouponUsage)
	})
}

func (h *AdminCouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.coupons.ListCoupons(ctx, services.CouponListFilter{
		CodePrefix: strings.TrimSpace(r.URL.Query().Get("code_prefix")),
		ActiveOnly: parseBoolQuery(r, "active_only"),
		Pagination: pager,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	payload := listCouponsResponse{
		Coupons:       make([]couponPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, coupon := range page.Items {
		payload.Coupons = append(payload.Coupons, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminCouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertCouponRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	coupon, err := buildCouponFromRequest(req, "")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	created, err := h.coupons.CreateCoupon(ctx, services.UpsertCouponCommand{Coupon: coupon})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCouponPayload(created))
}

func (h *AdminCouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertCouponRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	coupon, err := buildCouponFromRequest(req, chi.URLParam(r, "couponID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.coupons.UpdateCoupon(ctx, services.UpsertCouponCommand{Coupon: coupon})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(updated))
}

func (h *AdminCouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.coupons.DeleteCoupon(ctx, chi.URLParam(r, "couponID")); err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCouponHandlers) listCouponUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.coupons.ListCouponUsage(ctx, chi.URLParam(r, "couponID"), pager)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	payload := listCouponUsageResponse{
		Usage:         make([]couponUsagePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, usage := range page.Items {
		payload.Usage = append(payload.Usage, couponUsagePayload{
			ID:       usage.ID,
			CouponID: usage.CouponID,
			UserID:   usage.UserID,
			OrderID:  usage.OrderID,
			Amount:   usage.Amount,
			Currency: usage.Currency,
			UsedAt:   formatTime(usage.UsedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func buildCouponFromRequest(req upsertCouponRequest, couponID string) (domain.Coupon, error) {
	validFrom, err := parseTimePtr(req.ValidFrom)
	if err != nil {
		return domain.Coupon{}, err
	}
	validUntil, err := parseTimePtr(req.ValidUntil)
	if err != nil {
		return domain.Coupon{}, err
	}
	return domain.Coupon{
		ID:             strings.TrimSpace(couponID),
		Code:           req.Code,
		Description:    req.Description,
		Priority:       req.Priority,
		Stackable:      req.Stackable,
		Active:         req.Active,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		Conditions:     conditionsFromPayload(req.Conditions),
		Modifiers:      modifiersFromPayload(req.Modifiers),
		CampaignIDs:    req.CampaignIDs,
	}, nil
}

type upsertCouponRequest struct {
	Code           string             `json:"code"`
	Description    string             `json:"description"`
	Priority       int                `json:"priority"`
	Stackable      bool               `json:"stackable"`
	Active         bool               `json:"active"`
	ValidFrom      *string            `json:"valid_from"`
	ValidUntil     *string            `json:"valid_until"`
	MaxUses        *int64             `json:"max_uses"`
	MaxUsesPerUser *int64             `json:"max_uses_per_user"`
	Conditions     []conditionPayload `json:"conditions"`
	Modifiers      []modifierPayload  `json:"modifiers"`
	CampaignIDs    []string           `json:"campaign_ids"`
}

type listCouponsResponse struct {
	Coupons       []couponPayload `json:"coupons"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponPayload struct {
	ID             string             `json:"id"`
	Code           string             `json:"code"`
	Description    string             `json:"description,omitempty"`
	Priority       int                `json:"priority"`
	Stackable      bool               `json:"stackable"`
	Active         bool               `json:"active"`
	ValidFrom      *string            `json:"valid_from,omitempty"`
	ValidUntil     *string            `json:"valid_until,omitempty"`
	MaxUses        *int64             `json:"max_uses,omitempty"`
	MaxUsesPerUser *int64             `json:"max_uses_per_user,omitempty"`
	Conditions     []conditionPayload `json:"conditions,omitempty"`
	Modifiers      []modifierPayload  `json:"modifiers"`
	CampaignIDs    []string           `json:"campaign_ids,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
	DeletedAt      *string            `json:"deleted_at,omitempty"`
}

type listCouponUsageResponse struct {
	Usage         []couponUsagePayload `json:"usage"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type couponUsagePayload struct {
	ID       string `json:"id"`
	CouponID string `json:"coupon_id"`
	UserID   string `json:"user_id,omitempty"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	UsedAt   string `json:"used_at"`
}

func buildCouponPayload(coupon domain.Coupon) couponPayload {
	return couponPayload{
		ID:             coupon.ID,
		Code:           coupon.NormalizedCode(),
		Description:    coupon.Description,
		Priority:       coupon.Priority,
		Stackable:      coupon.Stackable,
		Active:         coupon.Active,
		ValidFrom:      formatTimePtr(coupon.ValidFrom),
		ValidUntil:     formatTimePtr(coupon.ValidUntil),
		MaxUses:        coupon.MaxUses,
		MaxUsesPerUser: coupon.MaxUsesPerUser,
		Conditions:     conditionsToPayload(coupon.Conditions),
		Modifiers:      modifiersToPayload(coupon.Modifiers),
		CampaignIDs:    coupon.CampaignIDs,
		CreatedAt:      formatTime(coupon.CreatedAt),
		UpdatedAt:      formatTime(coupon.UpdatedAt),
		DeletedAt:      formatTimePtr(coupon.DeletedAt),
	}
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponServiceInvalidInput), errors.Is(err, services.ErrMalformedRule):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponCodeConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_code_conflict", "coupon code already in use", http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("coupon_store_unavailable", "coupon store unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}
