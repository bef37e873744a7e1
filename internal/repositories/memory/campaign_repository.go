package memory

import (
	"context"
	"sort"
	"strings"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

type campaignStore struct {
	registry  *Registry
	campaigns map[string]domain.Campaign
}

var _ repositories.CampaignRepository = (*campaignStore)(nil)

func (s *campaignStore) Insert(_ context.Context, campaign domain.Campaign) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.campaigns == nil {
		s.campaigns = map[string]domain.Campaign{}
	}
	if _, exists := s.campaigns[campaign.ID]; exists {
		return conflictErr("campaign %s already exists", campaign.ID)
	}
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *campaignStore) Update(_ context.Context, campaign domain.Campaign) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if _, exists := s.campaigns[campaign.ID]; !exists {
		return notFoundErr("campaign %s not found", campaign.ID)
	}
	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *campaignStore) FindByID(_ context.Context, campaignID string) (domain.Campaign, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	campaign, exists := s.campaigns[campaignID]
	if !exists {
		return domain.Campaign{}, notFoundErr("campaign %s not found", campaignID)
	}
	return campaign, nil
}

func (s *campaignStore) FindByIDs(_ context.Context, campaignIDs []string) (map[string]domain.Campaign, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	out := make(map[string]domain.Campaign, len(campaignIDs))
	for _, id := range campaignIDs {
		if campaign, exists := s.campaigns[id]; exists {
			out[id] = campaign
		}
	}
	return out, nil
}

func (s *campaignStore) List(_ context.Context, filter repositories.CampaignListFilter) (domain.CursorPage[domain.Campaign], error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	items := make([]domain.Campaign, 0, len(s.campaigns))
	for _, campaign := range s.campaigns {
		if len(filter.Status) > 0 && !containsStatus(filter.Status, campaign.Status) {
			continue
		}
		if zone := strings.TrimSpace(filter.Zone); zone != "" && !containsFoldMemory(campaign.Zones, zone) {
			continue
		}
		if channel := strings.TrimSpace(filter.Channel); channel != "" && !containsFoldMemory(campaign.Channels, channel) {
			continue
		}
		items = append(items, campaign)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return domain.CursorPage[domain.Campaign]{Items: items}, nil
}

func containsStatus(statuses []domain.CampaignStatus, target domain.CampaignStatus) bool {
	for _, status := range statuses {
		if status == target {
			return true
		}
	}
	return false
}

func containsFoldMemory(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}
