package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

const campaignIDPrefix = "cmp_"

// campaignTransitions is the authored lifecycle graph. Stored status reflects
// staff intent; effective eligibility is always recomputed against the clock.
var campaignTransitions = map[domain.CampaignStatus][]domain.CampaignStatus{
	domain.CampaignStatusDraft:     {domain.CampaignStatusScheduled, domain.CampaignStatusCancelled},
	domain.CampaignStatusScheduled: {domain.CampaignStatusActive, domain.CampaignStatusCancelled},
	domain.CampaignStatusActive:    {domain.CampaignStatusPaused, domain.CampaignStatusCompleted, domain.CampaignStatusCancelled},
	domain.CampaignStatusPaused:    {domain.CampaignStatusActive, domain.CampaignStatusCompleted, domain.CampaignStatusCancelled},
	domain.CampaignStatusCompleted: {},
	domain.CampaignStatusCancelled: {},
}

type campaignService struct {
	campaigns repositories.CampaignRepository
	idGen     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

type CampaignServiceDeps struct {
	Campaigns repositories.CampaignRepository
	IDGen     func() string
	Now       func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

func NewCampaignService(deps CampaignServiceDeps) (CampaignService, error) {
	if deps.Campaigns == nil {
		return nil, ErrCampaignServiceRepositoryMissing
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return campaignIDPrefix + ulid.Make().String() }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &campaignService{
		campaigns: deps.Campaigns,
		idGen:     idGen,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

func (s *campaignService) CreateCampaign(ctx context.Context, cmd UpsertCampaignCommand) (Campaign, error) {
	campaign := cmd.Campaign
	if err := validateCampaign(&campaign); err != nil {
		return Campaign{}, err
	}
	if campaign.Status == "" {
		campaign.Status = domain.CampaignStatusDraft
	}
	if !isKnownCampaignStatus(campaign.Status) {
		return Campaign{}, fmt.Errorf("%w: unknown status %q", ErrCampaignServiceInvalidInput, campaign.Status)
	}

	now := s.now()
	campaign.ID = s.idGen()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	if err := s.campaigns.Insert(ctx, campaign); err != nil {
		return Campaign{}, wrapStoreError(err)
	}
	s.logger(ctx, "campaign_created", map[string]any{"campaignId": campaign.ID, "status": string(campaign.Status)})
	return campaign, nil
}

func (s *campaignService) UpdateCampaign(ctx context.Context, cmd UpsertCampaignCommand) (Campaign, error) {
	update := cmd.Campaign
	if strings.TrimSpace(update.ID) == "" {
		return Campaign{}, fmt.Errorf("%w: campaign id is required", ErrCampaignServiceInvalidInput)
	}
	if err := validateCampaign(&update); err != nil {
		return Campaign{}, err
	}

	existing, err := s.campaigns.FindByID(ctx, update.ID)
	if err != nil {
		if isNotFound(err) {
			return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, update.ID)
		}
		return Campaign{}, wrapStoreError(err)
	}

	// Status changes go through Transition, not Update.
	update.Status = existing.Status
	update.CreatedAt = existing.CreatedAt
	update.UpdatedAt = s.now()

	if err := s.campaigns.Update(ctx, update); err != nil {
		return Campaign{}, wrapStoreError(err)
	}
	return update, nil
}

func (s *campaignService) GetCampaign(ctx context.Context, campaignID string) (Campaign, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Campaign{}, fmt.Errorf("%w: campaign id is required", ErrCampaignServiceInvalidInput)
	}
	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		if isNotFound(err) {
			return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
		}
		return Campaign{}, wrapStoreError(err)
	}
	return campaign, nil
}

func (s *campaignService) ListCampaigns(ctx context.Context, filter CampaignListFilter) (domain.CursorPage[Campaign], error) {
	page, err := s.campaigns.List(ctx, repositories.CampaignListFilter{
		Status:     filter.Status,
		Zone:       strings.TrimSpace(filter.Zone),
		Channel:    strings.TrimSpace(filter.Channel),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Campaign]{}, wrapStoreError(err)
	}
	return page, nil
}

// Transition moves a campaign to a new stored status if the lifecycle graph
// permits it. Completed and cancelled are terminal.
func (s *campaignService) Transition(ctx context.Context, cmd CampaignTransitionCommand) (Campaign, error) {
	campaignID := strings.TrimSpace(cmd.CampaignID)
	if campaignID == "" {
		return Campaign{}, fmt.Errorf("%w: campaign id is required", ErrCampaignServiceInvalidInput)
	}
	if !isKnownCampaignStatus(cmd.Target) {
		return Campaign{}, fmt.Errorf("%w: unknown status %q", ErrCampaignServiceInvalidInput, cmd.Target)
	}

	campaign, err := s.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		if isNotFound(err) {
			return Campaign{}, fmt.Errorf("%w: %s", ErrCampaignNotFound, campaignID)
		}
		return Campaign{}, wrapStoreError(err)
	}

	if !transitionAllowed(campaign.Status, cmd.Target) {
		return Campaign{}, fmt.Errorf("%w: %s -> %s", ErrCampaignInvalidTransition, campaign.Status, cmd.Target)
	}

	from := campaign.Status
	campaign.Status = cmd.Target
	campaign.UpdatedAt = s.now()

	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return Campaign{}, wrapStoreError(err)
	}
	s.logger(ctx, "campaign_transitioned", map[string]any{
		"campaignId": campaign.ID,
		"from":       string(from),
		"to":         string(campaign.Status),
	})
	return campaign, nil
}

// EligibleCampaigns recomputes effective eligibility for the requested
// campaigns: stored status must be active, the clock must sit inside the
// window, and the zone/channel scope must match. A campaign that lapsed past
// its end date is ineligible even though its stored status still says active.
func (s *campaignService) EligibleCampaigns(ctx context.Context, campaignIDs []string, at time.Time, zone string, channel string) (map[string]bool, error) {
	eligible := make(map[string]bool, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return eligible, nil
	}
	if at.IsZero() {
		at = s.now()
	}

	campaigns, err := s.campaigns.FindByIDs(ctx, campaignIDs)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	for _, id := range campaignIDs {
		campaign, ok := campaigns[id]
		if !ok {
			// An unknown campaign gates its rules off rather than failing
			// the evaluation.
			eligible[id] = false
			continue
		}
		eligible[id] = campaign.EligibleAt(at, zone, channel)
	}
	return eligible, nil
}

func validateCampaign(campaign *Campaign) error {
	campaign.Name = strings.TrimSpace(campaign.Name)
	if campaign.Name == "" {
		return fmt.Errorf("%w: campaign name is required", ErrCampaignServiceInvalidInput)
	}
	if campaign.StartsAt != nil && campaign.EndsAt != nil && campaign.EndsAt.Before(*campaign.StartsAt) {
		return fmt.Errorf("%w: campaign window is inverted", ErrCampaignServiceInvalidInput)
	}
	return nil
}

func isKnownCampaignStatus(status domain.CampaignStatus) bool {
	_, ok := campaignTransitions[status]
	return ok
}

func transitionAllowed(from, to domain.CampaignStatus) bool {
	for _, allowed := range campaignTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
