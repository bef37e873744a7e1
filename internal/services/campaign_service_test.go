package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

func testCampaignService(t *testing.T, repo *fakeCampaignRepo) CampaignService {
	t.Helper()
	svc, err := NewCampaignService(CampaignServiceDeps{
		Campaigns: repo,
		IDGen:     func() string { return "cmp_fixed" },
		Now:       func() time.Time { return time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCampaignService error: %v", err)
	}
	return svc
}

func TestCampaignTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.CampaignStatus
		to      domain.CampaignStatus
		allowed bool
	}{
		{name: "draft to scheduled", from: domain.CampaignStatusDraft, to: domain.CampaignStatusScheduled, allowed: true},
		{name: "scheduled to active", from: domain.CampaignStatusScheduled, to: domain.CampaignStatusActive, allowed: true},
		{name: "active to paused", from: domain.CampaignStatusActive, to: domain.CampaignStatusPaused, allowed: true},
		{name: "paused back to active", from: domain.CampaignStatusPaused, to: domain.CampaignStatusActive, allowed: true},
		{name: "active to completed", from: domain.CampaignStatusActive, to: domain.CampaignStatusCompleted, allowed: true},
		{name: "draft to cancelled", from: domain.CampaignStatusDraft, to: domain.CampaignStatusCancelled, allowed: true},
		{name: "draft straight to active", from: domain.CampaignStatusDraft, to: domain.CampaignStatusActive, allowed: false},
		{name: "completed is terminal", from: domain.CampaignStatusCompleted, to: domain.CampaignStatusCancelled, allowed: false},
		{name: "cancelled is terminal", from: domain.CampaignStatusCancelled, to: domain.CampaignStatusActive, allowed: false},
		{name: "scheduled cannot pause", from: domain.CampaignStatusScheduled, to: domain.CampaignStatusPaused, allowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeCampaignRepo{campaigns: map[string]domain.Campaign{
				"cmp_1": {ID: "cmp_1", Name: "summer", Status: tc.from},
			}}
			svc := testCampaignService(t, repo)

			campaign, err := svc.Transition(context.Background(), CampaignTransitionCommand{CampaignID: "cmp_1", Target: tc.to})
			if tc.allowed {
				if err != nil {
					t.Fatalf("transition %s -> %s should be allowed: %v", tc.from, tc.to, err)
				}
				if campaign.Status != tc.to {
					t.Fatalf("status not updated: %+v", campaign)
				}
				return
			}
			if !errors.Is(err, ErrCampaignInvalidTransition) {
				t.Fatalf("transition %s -> %s should be rejected, got %v", tc.from, tc.to, err)
			}
		})
	}
}

func TestCampaignTransitionUnknownCampaign(t *testing.T) {
	svc := testCampaignService(t, &fakeCampaignRepo{campaigns: map[string]domain.Campaign{}})
	if _, err := svc.Transition(context.Background(), CampaignTransitionCommand{CampaignID: "cmp_missing", Target: domain.CampaignStatusScheduled}); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("want ErrCampaignNotFound, got %v", err)
	}
}

func TestCreateCampaignDefaultsToDraft(t *testing.T) {
	repo := &fakeCampaignRepo{}
	svc := testCampaignService(t, repo)

	campaign, err := svc.CreateCampaign(context.Background(), UpsertCampaignCommand{Campaign: Campaign{Name: "  Summer Sale "}})
	if err != nil {
		t.Fatalf("CreateCampaign error: %v", err)
	}
	if campaign.ID != "cmp_fixed" || campaign.Status != domain.CampaignStatusDraft || campaign.Name != "Summer Sale" {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("campaign not persisted")
	}
}

func TestCreateCampaignRejectsInvertedWindow(t *testing.T) {
	svc := testCampaignService(t, &fakeCampaignRepo{})
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := svc.CreateCampaign(context.Background(), UpsertCampaignCommand{Campaign: Campaign{
		Name:     "broken",
		StartsAt: &start,
		EndsAt:   &end,
	}})
	if !errors.Is(err, ErrCampaignServiceInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}

func TestUpdateCampaignPreservesStatus(t *testing.T) {
	repo := &fakeCampaignRepo{campaigns: map[string]domain.Campaign{
		"cmp_1": {ID: "cmp_1", Name: "summer", Status: domain.CampaignStatusActive},
	}}
	svc := testCampaignService(t, repo)

	updated, err := svc.UpdateCampaign(context.Background(), UpsertCampaignCommand{Campaign: Campaign{
		ID:     "cmp_1",
		Name:   "summer renamed",
		Status: domain.CampaignStatusCancelled, // must be ignored
	}})
	if err != nil {
		t.Fatalf("UpdateCampaign error: %v", err)
	}
	if updated.Status != domain.CampaignStatusActive {
		t.Fatalf("update must not change status, got %v", updated.Status)
	}
}

func TestEligibleCampaignsRecomputesEffectiveState(t *testing.T) {
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	lapsedEnd := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	repo := &fakeCampaignRepo{campaigns: map[string]domain.Campaign{
		"cmp_live":     {ID: "cmp_live", Status: domain.CampaignStatusActive, StartsAt: &past, EndsAt: &future},
		"cmp_lapsed":   {ID: "cmp_lapsed", Status: domain.CampaignStatusActive, StartsAt: &past, EndsAt: &lapsedEnd},
		"cmp_paused":   {ID: "cmp_paused", Status: domain.CampaignStatusPaused, StartsAt: &past, EndsAt: &future},
		"cmp_zone":     {ID: "cmp_zone", Status: domain.CampaignStatusActive, Zones: []string{"EU"}},
		"cmp_channel":  {ID: "cmp_channel", Status: domain.CampaignStatusActive, Channels: []string{"web"}},
		"cmp_upcoming": {ID: "cmp_upcoming", Status: domain.CampaignStatusActive, StartsAt: &future},
	}}
	svc := testCampaignService(t, repo)

	ids := []string{"cmp_live", "cmp_lapsed", "cmp_paused", "cmp_zone", "cmp_channel", "cmp_upcoming", "cmp_unknown"}
	eligible, err := svc.EligibleCampaigns(context.Background(), ids, now, "us", "app")
	if err != nil {
		t.Fatalf("EligibleCampaigns error: %v", err)
	}

	want := map[string]bool{
		"cmp_live":     true,
		"cmp_lapsed":   false, // window lapsed; stored status untouched
		"cmp_paused":   false,
		"cmp_zone":     false,
		"cmp_channel":  false,
		"cmp_upcoming": false,
		"cmp_unknown":  false,
	}
	for id, wantEligible := range want {
		if eligible[id] != wantEligible {
			t.Fatalf("campaign %s: want %v, got %v", id, wantEligible, eligible[id])
		}
	}

	// Recomputation never mutates stored status.
	if repo.campaigns["cmp_lapsed"].Status != domain.CampaignStatusActive {
		t.Fatalf("stored status must not flip as an evaluation side effect")
	}
	if len(repo.updated) != 0 {
		t.Fatalf("eligibility must not write: %+v", repo.updated)
	}
}

func TestEligibleCampaignsZoneAndChannelScope(t *testing.T) {
	repo := &fakeCampaignRepo{campaigns: map[string]domain.Campaign{
		"cmp_eu_web": {ID: "cmp_eu_web", Status: domain.CampaignStatusActive, Zones: []string{"EU"}, Channels: []string{"web"}},
	}}
	svc := testCampaignService(t, repo)
	now := time.Date(2026, 6, 12, 12, 0, 0, 0, time.UTC)

	eligible, err := svc.EligibleCampaigns(context.Background(), []string{"cmp_eu_web"}, now, "eu", "WEB")
	if err != nil {
		t.Fatalf("EligibleCampaigns error: %v", err)
	}
	if !eligible["cmp_eu_web"] {
		t.Fatalf("zone and channel matching is case-insensitive")
	}
}
