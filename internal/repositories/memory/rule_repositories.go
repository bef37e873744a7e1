package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

type discountRuleStore struct {
	registry *Registry
	rules    map[string]domain.DiscountRule
}

var _ repositories.DiscountRuleRepository = (*discountRuleStore)(nil)

func (s *discountRuleStore) Insert(_ context.Context, rule domain.DiscountRule) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.rules == nil {
		s.rules = map[string]domain.DiscountRule{}
	}
	if _, exists := s.rules[rule.ID]; exists {
		return conflictErr("discount rule %s already exists", rule.ID)
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *discountRuleStore) Update(_ context.Context, rule domain.DiscountRule) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		return notFoundErr("discount rule %s not found", rule.ID)
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *discountRuleStore) SoftDelete(_ context.Context, ruleID string, deletedAt time.Time) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return notFoundErr("discount rule %s not found", ruleID)
	}
	ts := deletedAt.UTC()
	rule.DeletedAt = &ts
	rule.UpdatedAt = ts
	s.rules[ruleID] = rule
	return nil
}

func (s *discountRuleStore) FindByID(_ context.Context, ruleID string) (domain.DiscountRule, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return domain.DiscountRule{}, notFoundErr("discount rule %s not found", ruleID)
	}
	return rule, nil
}

func (s *discountRuleStore) List(_ context.Context, filter repositories.RuleListFilter) (domain.CursorPage[domain.DiscountRule], error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	items := make([]domain.DiscountRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if !filter.IncludeDeleted && rule.DeletedAt != nil {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		if campaignID := strings.TrimSpace(filter.CampaignID); campaignID != "" && !containsString(rule.CampaignIDs, campaignID) {
			continue
		}
		items = append(items, rule)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return domain.CursorPage[domain.DiscountRule]{Items: items}, nil
}

func (s *discountRuleStore) ListCandidates(_ context.Context) ([]domain.DiscountRule, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rules := make([]domain.DiscountRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.DeletedAt != nil {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type variantRuleStore struct {
	registry *Registry
	rules    map[string]domain.VariantPricingRule
}

var _ repositories.VariantRuleRepository = (*variantRuleStore)(nil)

func (s *variantRuleStore) Insert(_ context.Context, rule domain.VariantPricingRule) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.rules == nil {
		s.rules = map[string]domain.VariantPricingRule{}
	}
	if _, exists := s.rules[rule.ID]; exists {
		return conflictErr("variant rule %s already exists", rule.ID)
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *variantRuleStore) Update(_ context.Context, rule domain.VariantPricingRule) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		return notFoundErr("variant rule %s not found", rule.ID)
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *variantRuleStore) SoftDelete(_ context.Context, ruleID string, deletedAt time.Time) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return notFoundErr("variant rule %s not found", ruleID)
	}
	ts := deletedAt.UTC()
	rule.DeletedAt = &ts
	rule.UpdatedAt = ts
	s.rules[ruleID] = rule
	return nil
}

func (s *variantRuleStore) FindByID(_ context.Context, ruleID string) (domain.VariantPricingRule, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rule, exists := s.rules[ruleID]
	if !exists {
		return domain.VariantPricingRule{}, notFoundErr("variant rule %s not found", ruleID)
	}
	return rule, nil
}

func (s *variantRuleStore) List(_ context.Context, filter repositories.RuleListFilter) (domain.CursorPage[domain.VariantPricingRule], error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	items := make([]domain.VariantPricingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if !filter.IncludeDeleted && rule.DeletedAt != nil {
			continue
		}
		if filter.ActiveOnly && !rule.Active {
			continue
		}
		if campaignID := strings.TrimSpace(filter.CampaignID); campaignID != "" && !containsString(rule.CampaignIDs, campaignID) {
			continue
		}
		items = append(items, rule)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return domain.CursorPage[domain.VariantPricingRule]{Items: items}, nil
}

func (s *variantRuleStore) ListCandidates(_ context.Context) ([]domain.VariantPricingRule, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	rules := make([]domain.VariantPricingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.DeletedAt != nil {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
