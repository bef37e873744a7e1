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

const maxRuleBodySize = 128 * 1024

// AdminRuleHandlers exposes back-office CRUD for discount and variant
// pricing rules.
type AdminRuleHandlers struct {
	rules services.RuleService
}

// NewAdminRuleHandlers constructs a new AdminRuleHandlers instance.
func NewAdminRuleHandlers(rules services.RuleService) *AdminRuleHandlers {
	return &AdminRuleHandlers{rules: rules}
}

// Routes registers the rule management endpoints.
func (h *AdminRuleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/discount-rules", func(group chi.Router) {
		group.Get("/", h.listDiscountRules)
		group.Post("/", h.createDiscountRule)
		group.Get("/{ruleID}", h.getDiscountRule)
		group.Put("/{ruleID}", h.updateDiscountRule)
		group.Delete("/{ruleID}", h.deleteDiscountRule)
	})
	r.Route("/variant-rules", func(group chi.Router) {
		group.Get("/", h.listVariantRules)
		group.Post("/", h.createVariantRule)
		group.Get("/{ruleID}", h.getVariantRule)
		group.Put("/{ruleID}", h.updateVariantRule)
		group.Delete("/{ruleID}", h.deleteVariantRule)
	})
}

func (h *AdminRuleHandlers) listDiscountRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, ok := h.decodeRuleListFilter(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.rules.ListDiscountRules(ctx, filter)
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}

	payload := listDiscountRulesResponse{
		Rules:         make([]discountRulePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, rule := range page.Items {
		payload.Rules = append(payload.Rules, buildDiscountRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminRuleHandlers) createDiscountRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertDiscountRuleRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	rule, err := h.buildDiscountRule(req, "")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	created, err := h.rules.CreateDiscountRule(ctx, services.UpsertDiscountRuleCommand{Rule: rule})
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDiscountRulePayload(created))
}

func (h *AdminRuleHandlers) getDiscountRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rule, err := h.rules.GetDiscountRule(ctx, chi.URLParam(r, "ruleID"))
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDiscountRulePayload(rule))
}

func (h *AdminRuleHandlers) updateDiscountRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertDiscountRuleRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	rule, err := h.buildDiscountRule(req, chi.URLParam(r, "ruleID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.rules.UpdateDiscountRule(ctx, services.UpsertDiscountRuleCommand{Rule: rule})
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDiscountRulePayload(updated))
}

func (h *AdminRuleHandlers) deleteDiscountRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.rules.DeleteDiscountRule(ctx, chi.URLParam(r, "ruleID")); err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminRuleHandlers) listVariantRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, ok := h.decodeRuleListFilter(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.rules.ListVariantRules(ctx, filter)
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}

	payload := listVariantRulesResponse{
		Rules:         make([]variantRulePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, rule := range page.Items {
		payload.Rules = append(payload.Rules, buildVariantRulePayload(rule))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminRuleHandlers) createVariantRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertVariantRuleRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	rule, err := h.buildVariantRule(req, "")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	created, err := h.rules.CreateVariantRule(ctx, services.UpsertVariantRuleCommand{Rule: rule})
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildVariantRulePayload(created))
}

func (h *AdminRuleHandlers) getVariantRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rule, err := h.rules.GetVariantRule(ctx, chi.URLParam(r, "ruleID"))
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVariantRulePayload(rule))
}

func (h *AdminRuleHandlers) updateVariantRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertVariantRuleRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	rule, err := h.buildVariantRule(req, chi.URLParam(r, "ruleID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.rules.UpdateVariantRule(ctx, services.UpsertVariantRuleCommand{Rule: rule})
	if err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVariantRulePayload(updated))
}

func (h *AdminRuleHandlers) deleteVariantRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.rules.DeleteVariantRule(ctx, chi.URLParam(r, "ruleID")); err != nil {
		writeRuleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminRuleHandlers) decodeRuleListFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.RuleListFilter, bool) {
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.RuleListFilter{}, false
	}
	return services.RuleListFilter{
		CampaignID: strings.TrimSpace(r.URL.Query().Get("campaign_id")),
		ActiveOnly: parseBoolQuery(r, "active_only"),
		Pagination: pager,
	}, true
}

func (h *AdminRuleHandlers) buildDiscountRule(req upsertDiscountRuleRequest, ruleID string) (domain.DiscountRule, error) {
	validFrom, err := parseTimePtr(req.ValidFrom)
	if err != nil {
		return domain.DiscountRule{}, err
	}
	validUntil, err := parseTimePtr(req.ValidUntil)
	if err != nil {
		return domain.DiscountRule{}, err
	}
	return domain.DiscountRule{
		ID:          strings.TrimSpace(ruleID),
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Stackable:   req.Stackable,
		Active:      req.Active,
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
		Conditions:  conditionsFromPayload(req.Conditions),
		Modifiers:   modifiersFromPayload(req.Modifiers),
		CouponID:    strings.TrimSpace(req.CouponID),
		CampaignIDs: req.CampaignIDs,
	}, nil
}

func (h *AdminRuleHandlers) buildVariantRule(req upsertVariantRuleRequest, ruleID string) (domain.VariantPricingRule, error) {
	validFrom, err := parseTimePtr(req.ValidFrom)
	if err != nil {
		return domain.VariantPricingRule{}, err
	}
	validUntil, err := parseTimePtr(req.ValidUntil)
	if err != nil {
		return domain.VariantPricingRule{}, err
	}
	return domain.VariantPricingRule{
		ID:          strings.TrimSpace(ruleID),
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Active:      req.Active,
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
		Conditions:  conditionsFromPayload(req.Conditions),
		Modifiers:   modifiersFromPayload(req.Modifiers),
		CampaignIDs: req.CampaignIDs,
	}, nil
}

type upsertDiscountRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Stackable   bool               `json:"stackable"`
	Active      bool               `json:"active"`
	ValidFrom   *string            `json:"valid_from"`
	ValidUntil  *string            `json:"valid_until"`
	Conditions  []conditionPayload `json:"conditions"`
	Modifiers   []modifierPayload  `json:"modifiers"`
	CouponID    string             `json:"coupon_id"`
	CampaignIDs []string           `json:"campaign_ids"`
}

type upsertVariantRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Active      bool               `json:"active"`
	ValidFrom   *string            `json:"valid_from"`
	ValidUntil  *string            `json:"valid_until"`
	Conditions  []conditionPayload `json:"conditions"`
	Modifiers   []modifierPayload  `json:"modifiers"`
	CampaignIDs []string           `json:"campaign_ids"`
}

type listDiscountRulesResponse struct {
	Rules         []discountRulePayload `json:"rules"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type listVariantRulesResponse struct {
	Rules         []variantRulePayload `json:"rules"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type discountRulePayload struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Priority    int                `json:"priority"`
	Stackable   bool               `json:"stackable"`
	Active      bool               `json:"active"`
	ValidFrom   *string            `json:"valid_from,omitempty"`
	ValidUntil  *string            `json:"valid_until,omitempty"`
	Conditions  []conditionPayload `json:"conditions,omitempty"`
	Modifiers   []modifierPayload  `json:"modifiers"`
	CouponID    string             `json:"coupon_id,omitempty"`
	CampaignIDs []string           `json:"campaign_ids,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	DeletedAt   *string            `json:"deleted_at,omitempty"`
}

type variantRulePayload struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Priority    int                `json:"priority"`
	Active      bool               `json:"active"`
	ValidFrom   *string            `json:"valid_from,omitempty"`
	ValidUntil  *string            `json:"valid_until,omitempty"`
	Conditions  []conditionPayload `json:"conditions,omitempty"`
	Modifiers   []modifierPayload  `json:"modifiers"`
	CampaignIDs []string           `json:"campaign_ids,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
	DeletedAt   *string            `json:"deleted_at,omitempty"`
}

func buildDiscountRulePayload(rule domain.DiscountRule) discountRulePayload {
	return discountRulePayload{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Priority:    rule.Priority,
		Stackable:   rule.Stackable,
		Active:      rule.Active,
		ValidFrom:   formatTimePtr(rule.ValidFrom),
		ValidUntil:  formatTimePtr(rule.ValidUntil),
		Conditions:  conditionsToPayload(rule.Conditions),
		Modifiers:   modifiersToPayload(rule.Modifiers),
		CouponID:    rule.CouponID,
		CampaignIDs: rule.CampaignIDs,
		CreatedAt:   formatTime(rule.CreatedAt),
		UpdatedAt:   formatTime(rule.UpdatedAt),
		DeletedAt:   formatTimePtr(rule.DeletedAt),
	}
}

func buildVariantRulePayload(rule domain.VariantPricingRule) variantRulePayload {
	return variantRulePayload{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Priority:    rule.Priority,
		Active:      rule.Active,
		ValidFrom:   formatTimePtr(rule.ValidFrom),
		ValidUntil:  formatTimePtr(rule.ValidUntil),
		Conditions:  conditionsToPayload(rule.Conditions),
		Modifiers:   modifiersToPayload(rule.Modifiers),
		CampaignIDs: rule.CampaignIDs,
		CreatedAt:   formatTime(rule.CreatedAt),
		UpdatedAt:   formatTime(rule.UpdatedAt),
		DeletedAt:   formatTimePtr(rule.DeletedAt),
	}
}

func writeRuleError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrRuleServiceInvalidInput), errors.Is(err, services.ErrMalformedRule):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("rule_not_found", "rule not found", http.StatusNotFound))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("rule_store_unavailable", "rule store unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("rule_error", "failed to process rule request", http.StatusInternalServerError))
	}
}
