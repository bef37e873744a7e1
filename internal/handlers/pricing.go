package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/platform/httpx"
	"github.com/veloura/api/internal/repositories"
	"github.com/veloura/api/internal/services"
)

const maxPricingBodySize = 256 * 1024

// PricingHandlers exposes the cart pricing endpoints: a repeatable preview
// and a finalize that consumes coupon redemptions.
type PricingHandlers struct {
	pricing services.PricingService
	limiter RateLimiter
	clock   func() time.Time
}

// NewPricingHandlers constructs a new PricingHandlers instance.
func NewPricingHandlers(pricing services.PricingService, limiter RateLimiter, clock func() time.Time) *PricingHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &PricingHandlers{
		pricing: pricing,
		limiter: limiter,
		clock:   clock,
	}
}

// Routes registers the /pricing endpoints.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/preview", h.previewPricing)
	r.Post("/finalize", h.finalizePricing)
}

func (h *PricingHandlers) previewPricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many pricing requests", http.StatusTooManyRequests))
		return
	}

	req, ok := decodeJSONBody[pricingRequest](ctx, w, r, maxPricingBodySize)
	if !ok {
		return
	}

	evalCtx, err := h.buildEvaluationContext(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.pricing.PreviewPricing(ctx, evalCtx)
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPricingResultPayload(result))
}

func (h *PricingHandlers) finalizePricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := decodeJSONBody[pricingRequest](ctx, w, r, maxPricingBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required to finalize", http.StatusBadRequest))
		return
	}

	evalCtx, err := h.buildEvaluationContext(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.pricing.FinalizePricing(ctx, services.FinalizePricingCommand{
		Context: evalCtx,
		OrderID: strings.TrimSpace(req.OrderID),
	})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPricingResultPayload(result))
}

func (h *PricingHandlers) buildEvaluationContext(req pricingRequest) (domain.EvaluationContext, error) {
	timestamp := h.clock().UTC()
	if ts, err := parseTimePtr(req.Timestamp); err != nil {
		return domain.EvaluationContext{}, err
	} else if ts != nil {
		timestamp = *ts
	}

	evalCtx := domain.EvaluationContext{
		Currency:         strings.ToUpper(strings.TrimSpace(req.Currency)),
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CustomerGroups:   req.CustomerGroups,
		CustomerPriority: req.CustomerPriority,
		Zone:             strings.TrimSpace(req.Zone),
		Channel:          strings.TrimSpace(req.Channel),
		CouponCodes:      req.CouponCodes,
		Timestamp:        timestamp,
	}
	for _, line := range req.Lines {
		evalCtx.Lines = append(evalCtx.Lines, domain.ContextLine{
			LineID:        strings.TrimSpace(line.LineID),
			ProductID:     strings.TrimSpace(line.ProductID),
			VariantID:     strings.TrimSpace(line.VariantID),
			CategoryIDs:   line.CategoryIDs,
			BrandID:       strings.TrimSpace(line.BrandID),
			CollectionIDs: line.CollectionIDs,
			Attributes:    line.Attributes,
			Size:          strings.TrimSpace(line.Size),
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
		})
	}
	return evalCtx, nil
}

type pricingRequest struct {
	OrderID          string               `json:"order_id"`
	Currency         string               `json:"currency"`
	CustomerID       string               `json:"customer_id"`
	CustomerGroups   []string             `json:"customer_groups"`
	CustomerPriority int64                `json:"customer_priority"`
	Zone             string               `json:"zone"`
	Channel          string               `json:"channel"`
	CouponCodes      []string             `json:"coupon_codes"`
	Timestamp        *string              `json:"timestamp"`
	Lines            []pricingLineRequest `json:"lines"`
}

type pricingLineRequest struct {
	LineID        string            `json:"line_id"`
	ProductID     string            `json:"product_id"`
	VariantID     string            `json:"variant_id"`
	CategoryIDs   []string          `json:"category_ids"`
	BrandID       string            `json:"brand_id"`
	CollectionIDs []string          `json:"collection_ids"`
	Attributes    map[string]string `json:"attributes"`
	Size          string            `json:"size"`
	Quantity      int64             `json:"quantity"`
	UnitPrice     int64             `json:"unit_price"`
}

type pricingResultPayload struct {
	Currency         string                  `json:"currency"`
	Subtotal         int64                   `json:"subtotal"`
	Discount         int64                   `json:"discount"`
	Total            int64                   `json:"total"`
	Lines            []linePricingPayload    `json:"lines"`
	AppliedRules     []appliedRulePayload    `json:"applied_rules"`
	Warnings         []pricingWarningPayload `json:"warnings,omitempty"`
	FinalizedOrderID string                  `json:"finalized_order_id,omitempty"`
}

type linePricingPayload struct {
	LineID            string   `json:"line_id"`
	Quantity          int64    `json:"quantity"`
	UnitPrice         int64    `json:"unit_price"`
	AdjustedUnitPrice int64    `json:"adjusted_unit_price"`
	Subtotal          int64    `json:"subtotal"`
	Discount          int64    `json:"discount"`
	Total             int64    `json:"total"`
	AppliedRuleIDs    []string `json:"applied_rule_ids,omitempty"`
}

type appliedRulePayload struct {
	RuleID     string `json:"rule_id"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	CouponCode string `json:"coupon_code,omitempty"`
	Amount     int64  `json:"amount"`
}

type pricingWarningPayload struct {
	RuleID  string `json:"rule_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func buildPricingResultPayload(result domain.PricingResult) pricingResultPayload {
	payload := pricingResultPayload{
		Currency:         result.Currency,
		Subtotal:         result.Subtotal,
		Discount:         result.Discount,
		Total:            result.Total,
		Lines:            make([]linePricingPayload, 0, len(result.Lines)),
		AppliedRules:     make([]appliedRulePayload, 0, len(result.AppliedRules)),
		FinalizedOrderID: result.FinalizedOrderID,
	}
	for _, line := range result.Lines {
		payload.Lines = append(payload.Lines, linePricingPayload{
			LineID:            line.LineID,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice,
			AdjustedUnitPrice: line.AdjustedUnitPrice,
			Subtotal:          line.Subtotal,
			Discount:          line.Discount,
			Total:             line.Total,
			AppliedRuleIDs:    line.AppliedRuleIDs,
		})
	}
	for _, rule := range result.AppliedRules {
		payload.AppliedRules = append(payload.AppliedRules, appliedRulePayload{
			RuleID:     rule.RuleID,
			Source:     string(rule.Source),
			Name:       rule.Name,
			CouponCode: rule.CouponCode,
			Amount:     rule.Amount,
		})
	}
	for _, warning := range result.Warnings {
		payload.Warnings = append(payload.Warnings, pricingWarningPayload{
			RuleID:  warning.RuleID,
			Code:    string(warning.Code),
			Message: warning.Message,
		})
	}
	return payload
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCurrencyMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("currency_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrMalformedRule):
		httpx.WriteError(ctx, w, httpx.NewError("malformed_rule", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRedemptionConflict):
		httpx.WriteError(ctx, w, httpx.NewError("redemption_conflict", "a coupon in this cart can no longer be redeemed", http.StatusConflict))
	case errors.Is(err, services.ErrPricingEngineOrderIDMissing):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required to finalize", http.StatusBadRequest))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_store_unavailable", "rule store unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("pricing_store_unavailable", "rule store unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "failed to price the cart", http.StatusInternalServerError))
	}
}
