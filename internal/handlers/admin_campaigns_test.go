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
	"github.com/veloura/api/internal/services"
)

type stubCampaignService struct {
	createFn     func(ctx context.Context, cmd services.UpsertCampaignCommand) (domain.Campaign, error)
	updateFn     func(ctx context.Context, cmd services.UpsertCampaignCommand) (domain.Campaign, error)
	getFn        func(ctx context.Context, campaignID string) (domain.Campaign, error)
	listFn       func(ctx context.Context, filter services.CampaignListFilter) (domain.CursorPage[domain.Campaign], error)
	transitionFn func(ctx context.Context, cmd services.CampaignTransitionCommand) (domain.Campaign, error)
	eligibleFn   func(ctx context.Context, campaignIDs []string, at time.Time, zone string, channel string) (map[string]bool, error)
}

func (s *stubCampaignService) CreateCampaign(ctx context.Context, cmd services.UpsertCampaignCommand) (domain.Campaign, error) {
	if s.createFn == nil {
		return domain.Campaign{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubCampaignService) UpdateCampaign(ctx context.Context, cmd services.UpsertCampaignCommand) (domain.Campaign, error) {
	if s.updateFn == nil {
		return domain.Campaign{}, nil
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCampaignService) GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if s.getFn == nil {
		return domain.Campaign{}, nil
	}
	return s.getFn(ctx, campaignID)
}

func (s *stubCampaignService) ListCampaigns(ctx context.Context, filter services.CampaignListFilter) (domain.CursorPage[domain.Campaign], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Campaign]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubCampaignService) Transition(ctx context.Context, cmd services.CampaignTransitionCommand) (domain.Campaign, error) {
	if s.transitionFn == nil {
		return domain.Campaign{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubCampaignService) EligibleCampaigns(ctx context.Context, campaignIDs []string, at time.Time, zone string, channel string) (map[string]bool, error) {
	if s.eligibleFn == nil {
		return map[string]bool{}, nil
	}
	return s.eligibleFn(ctx, campaignIDs, at, zone, channel)
}

var _ services.CampaignService = (*stubCampaignService)(nil)

func adminCampaignRouter(h *AdminCampaignHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", func(group chi.Router) {
		h.Routes(group)
	})
	return router
}

func TestCreateCampaign(t *testing.T) {
	svc := &stubCampaignService{
		createFn: func(_ context.Context, cmd services.UpsertCampaignCommand) (domain.Campaign, error) {
			campaign := cmd.Campaign
			if campaign.Name != "Summer Sale" {
				t.Fatalf("unexpected name %q", campaign.Name)
			}
			if campaign.StartsAt == nil {
				t.Fatal("starts_at not decoded")
			}
			campaign.ID = "cmp_1"
			campaign.Status = domain.CampaignStatusDraft
			return campaign, nil
		},
	}
	router := adminCampaignRouter(NewAdminCampaignHandlers(svc, nil))

	body := `{
		"name": "Summer Sale",
		"starts_at": "2026-07-01T00:00:00Z",
		"ends_at": "2026-07-31T23:59:59Z",
		"zones": ["eu"],
		"channels": ["web"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/admin/campaigns/", strings.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload campaignPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.ID != "cmp_1" || payload.Status != string(domain.CampaignStatusDraft) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestTransitionCampaign(t *testing.T) {
	svc := &stubCampaignService{
		transitionFn: func(_ context.Context, cmd services.CampaignTransitionCommand) (domain.Campaign, error) {
			if cmd.CampaignID != "cmp_1" || cmd.Target != domain.CampaignStatusActive {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return domain.Campaign{ID: "cmp_1", Status: domain.CampaignStatusActive}, nil
		},
	}
	router := adminCampaignRouter(NewAdminCampaignHandlers(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/campaigns/cmp_1/transition", strings.NewReader(`{"target": "active"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload campaignPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != string(domain.CampaignStatusActive) {
		t.Fatalf("unexpected status %q", payload.Status)
	}
}

func TestTransitionCampaignRejected(t *testing.T) {
	svc := &stubCampaignService{
		transitionFn: func(context.Context, services.CampaignTransitionCommand) (domain.Campaign, error) {
			return domain.Campaign{}, services.ErrCampaignInvalidTransition
		},
	}
	router := adminCampaignRouter(NewAdminCampaignHandlers(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/campaigns/cmp_1/transition", strings.NewReader(`{"target": "active"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %v", body["error"])
	}
}

func TestCampaignEligibility(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	svc := &stubCampaignService{
		eligibleFn: func(_ context.Context, campaignIDs []string, at time.Time, zone string, channel string) (map[string]bool, error) {
			if len(campaignIDs) != 2 || zone != "eu" || channel != "web" {
				t.Fatalf("unexpected args: %v %s %s", campaignIDs, zone, channel)
			}
			if !at.Equal(now) {
				t.Fatalf("timestamp not honoured: %v", at)
			}
			return map[string]bool{"cmp_1": true, "cmp_2": false}, nil
		},
	}
	router := adminCampaignRouter(NewAdminCampaignHandlers(svc, nil))

	body := `{
		"campaign_ids": ["cmp_1", "cmp_2"],
		"at": "2026-06-12T12:00:00Z",
		"zone": "eu",
		"channel": "web"
	}`
	req := httptest.NewRequest(http.MethodPost, "/admin/campaigns/eligibility", strings.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload campaignEligibilityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !payload.Eligibility["cmp_1"] || payload.Eligibility["cmp_2"] {
		t.Fatalf("unexpected eligibility: %+v", payload.Eligibility)
	}
}

func TestCampaignEligibilityRequiresIDs(t *testing.T) {
	router := adminCampaignRouter(NewAdminCampaignHandlers(&stubCampaignService{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/admin/campaigns/eligibility", strings.NewReader(`{"zone": "eu"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListCampaignsFilter(t *testing.T) {
	var captured services.CampaignListFilter
	svc := &stubCampaignService{
		listFn: func(_ context.Context, filter services.CampaignListFilter) (domain.CursorPage[domain.Campaign], error) {
			captured = filter
			return domain.CursorPage[domain.Campaign]{Items: []domain.Campaign{{ID: "cmp_1"}}}, nil
		},
	}
	router := adminCampaignRouter(NewAdminCampaignHandlers(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/admin/campaigns/?status=active&status=paused&zone=eu", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.CampaignStatusActive {
		t.Fatalf("status filter not decoded: %+v", captured.Status)
	}
	if captured.Zone != "eu" {
		t.Fatalf("zone filter not decoded: %+v", captured)
	}
}
