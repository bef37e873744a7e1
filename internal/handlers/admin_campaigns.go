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

// AdminCampaignHandlers exposes campaign lifecycle management.
type AdminCampaignHandlers struct {
	campaigns services.CampaignService
	clock     func() time.Time
}

// NewAdminCampaignHandlers constructs a new AdminCampaignHandlers instance.
func NewAdminCampaignHandlers(campaigns services.CampaignService, clock func() time.Time) *AdminCampaignHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &AdminCampaignHandlers{campaigns: campaigns, clock: clock}
}

// Routes registers the campaign management endpoints.
func (h *AdminCampaignHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/campaigns", func(group chi.Router) {
		group.Get("/", h.listCampaigns)
		group.Post("/", h.createCampaign)
		group.Post("/eligibility", h.campaignEligibility)
		group.Get("/{campaignID}", h.getCampaign)
		group.Put("/{campaignID}", h.updateCampaign)
		group.Post("/{campaignID}/transition", h.transitionCampaign)
	})
}

func (h *AdminCampaignHandlers) listCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.CampaignListFilter{
		Zone:       strings.TrimSpace(r.URL.Query().Get("zone")),
		Channel:    strings.TrimSpace(r.URL.Query().Get("channel")),
		Pagination: pager,
	}
	for _, raw := range r.URL.Query()["status"] {
		if status := strings.TrimSpace(raw); status != "" {
			filter.Status = append(filter.Status, domain.CampaignStatus(status))
		}
	}

	page, err := h.campaigns.ListCampaigns(ctx, filter)
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}

	payload := listCampaignsResponse{
		Campaigns:     make([]campaignPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, campaign := range page.Items {
		payload.Campaigns = append(payload.Campaigns, buildCampaignPayload(campaign))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminCampaignHandlers) createCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertCampaignRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	campaign, err := buildCampaignFromRequest(req, "")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	created, err := h.campaigns.CreateCampaign(ctx, services.UpsertCampaignCommand{Campaign: campaign})
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCampaignPayload(created))
}

func (h *AdminCampaignHandlers) getCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaign, err := h.campaigns.GetCampaign(ctx, chi.URLParam(r, "campaignID"))
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCampaignPayload(campaign))
}

func (h *AdminCampaignHandlers) updateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[upsertCampaignRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	campaign, err := buildCampaignFromRequest(req, chi.URLParam(r, "campaignID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.campaigns.UpdateCampaign(ctx, services.UpsertCampaignCommand{Campaign: campaign})
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCampaignPayload(updated))
}

func (h *AdminCampaignHandlers) transitionCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[campaignTransitionRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}

	campaign, err := h.campaigns.Transition(ctx, services.CampaignTransitionCommand{
		CampaignID: chi.URLParam(r, "campaignID"),
		Target:     domain.CampaignStatus(strings.TrimSpace(req.Target)),
	})
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCampaignPayload(campaign))
}

func (h *AdminCampaignHandlers) campaignEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeJSONBody[campaignEligibilityRequest](ctx, w, r, maxRuleBodySize)
	if !ok {
		return
	}
	if len(req.CampaignIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "campaign_ids is required", http.StatusBadRequest))
		return
	}

	at := h.clock().UTC()
	if ts, err := parseTimePtr(req.At); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else if ts != nil {
		at = *ts
	}

	eligibility, err := h.campaigns.EligibleCampaigns(ctx, req.CampaignIDs, at, strings.TrimSpace(req.Zone), strings.TrimSpace(req.Channel))
	if err != nil {
		writeCampaignError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, campaignEligibilityResponse{
		At:          formatTime(at),
		Eligibility: eligibility,
	})
}

func buildCampaignFromRequest(req upsertCampaignRequest, campaignID string) (domain.Campaign, error) {
	startsAt, err := parseTimePtr(req.StartsAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	endsAt, err := parseTimePtr(req.EndsAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	return domain.Campaign{
		ID:          strings.TrimSpace(campaignID),
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.CampaignStatus(strings.TrimSpace(req.Status)),
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Zones:       req.Zones,
		Channels:    req.Channels,
		DiscountIDs: req.DiscountIDs,
	}, nil
}

type upsertCampaignRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	StartsAt    *string  `json:"starts_at"`
	EndsAt      *string  `json:"ends_at"`
	Zones       []string `json:"zones"`
	Channels    []string `json:"channels"`
	DiscountIDs []string `json:"discount_ids"`
}

type campaignTransitionRequest struct {
	Target string `json:"target"`
}

type campaignEligibilityRequest struct {
	CampaignIDs []string `json:"campaign_ids"`
	At          *string  `json:"at"`
	Zone        string   `json:"zone"`
	Channel     string   `json:"channel"`
}

type campaignEligibilityResponse struct {
	At          string          `json:"at"`
	Eligibility map[string]bool `json:"eligibility"`
}

type listCampaignsResponse struct {
	Campaigns     []campaignPayload `json:"campaigns"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type campaignPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	StartsAt    *string  `json:"starts_at,omitempty"`
	EndsAt      *string  `json:"ends_at,omitempty"`
	Zones       []string `json:"zones,omitempty"`
	Channels    []string `json:"channels,omitempty"`
	DiscountIDs []string `json:"discount_ids,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func buildCampaignPayload(campaign domain.Campaign) campaignPayload {
	return campaignPayload{
		ID:          campaign.ID,
		Name:        campaign.Name,
		Description: campaign.Description,
		Status:      string(campaign.Status),
		StartsAt:    formatTimePtr(campaign.StartsAt),
		EndsAt:      formatTimePtr(campaign.EndsAt),
		Zones:       campaign.Zones,
		Channels:    campaign.Channels,
		DiscountIDs: campaign.DiscountIDs,
		CreatedAt:   formatTime(campaign.CreatedAt),
		UpdatedAt:   formatTime(campaign.UpdatedAt),
	}
}

func writeCampaignError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCampaignServiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCampaignNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("campaign_not_found", "campaign not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCampaignInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("campaign_store_unavailable", "campaign store unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("campaign_error", "failed to process campaign request", http.StatusInternalServerError))
	}
}
