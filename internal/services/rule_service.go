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

const (
	discountRuleIDPrefix = "dr_"
	variantRuleIDPrefix  = "vr_"
)

type ruleService struct {
	discountRules repositories.DiscountRuleRepository
	variantRules  repositories.VariantRuleRepository
	idGen         func(prefix string) string
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

type RuleServiceDeps struct {
	DiscountRules repositories.DiscountRuleRepository
	VariantRules  repositories.VariantRuleRepository
	IDGen         func(prefix string) string
	Now           func() time.Time
	Logger        func(context.Context, string, map[string]any)
}

func NewRuleService(deps RuleServiceDeps) (RuleService, error) {
	if deps.DiscountRules == nil || deps.VariantRules == nil {
		return nil, ErrRuleServiceRepositoryMissing
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func(prefix string) string { return prefix + ulid.Make().String() }
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ruleService{
		discountRules: deps.DiscountRules,
		variantRules:  deps.VariantRules,
		idGen:         idGen,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

func (s *ruleService) CreateDiscountRule(ctx context.Context, cmd UpsertDiscountRuleCommand) (DiscountRule, error) {
	rule := cmd.Rule
	if err := validateDiscountRule(&rule); err != nil {
		return DiscountRule{}, err
	}

	now := s.now()
	rule.ID = s.idGen(discountRuleIDPrefix)
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.DeletedAt = nil

	if err := s.discountRules.Insert(ctx, rule); err != nil {
		return DiscountRule{}, wrapStoreError(err)
	}
	s.logger(ctx, "discount_rule_created", map[string]any{"ruleId": rule.ID, "priority": rule.Priority})
	return rule, nil
}

func (s *ruleService) UpdateDiscountRule(ctx context.Context, cmd UpsertDiscountRuleCommand) (DiscountRule, error) {
	update := cmd.Rule
	if strings.TrimSpace(update.ID) == "" {
		return DiscountRule{}, fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	if err := validateDiscountRule(&update); err != nil {
		return DiscountRule{}, err
	}

	existing, err := s.discountRules.FindByID(ctx, update.ID)
	if err != nil {
		if isNotFound(err) {
			return DiscountRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, update.ID)
		}
		return DiscountRule{}, wrapStoreError(err)
	}

	update.CreatedAt = existing.CreatedAt
	update.DeletedAt = existing.DeletedAt
	update.UpdatedAt = s.now()

	if err := s.discountRules.Update(ctx, update); err != nil {
		return DiscountRule{}, wrapStoreError(err)
	}
	return update, nil
}

func (s *ruleService) DeleteDiscountRule(ctx context.Context, ruleID string) error {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	if err := s.discountRules.SoftDelete(ctx, ruleID, s.now()); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
		}
		return wrapStoreError(err)
	}
	s.logger(ctx, "discount_rule_deleted", map[string]any{"ruleId": ruleID})
	return nil
}

func (s *ruleService) GetDiscountRule(ctx context.Context, ruleID string) (DiscountRule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return DiscountRule{}, fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	rule, err := s.discountRules.FindByID(ctx, ruleID)
	if err != nil {
		if isNotFound(err) {
			return DiscountRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
		}
		return DiscountRule{}, wrapStoreError(err)
	}
	return rule, nil
}

func (s *ruleService) ListDiscountRules(ctx context.Context, filter RuleListFilter) (domain.CursorPage[DiscountRule], error) {
	page, err := s.discountRules.List(ctx, repositories.RuleListFilter{
		CampaignID: strings.TrimSpace(filter.CampaignID),
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[DiscountRule]{}, wrapStoreError(err)
	}
	return page, nil
}

func (s *ruleService) CreateVariantRule(ctx context.Context, cmd UpsertVariantRuleCommand) (VariantPricingRule, error) {
	rule := cmd.Rule
	if err := validateVariantRule(&rule); err != nil {
		return VariantPricingRule{}, err
	}

	now := s.now()
	rule.ID = s.idGen(variantRuleIDPrefix)
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.DeletedAt = nil

	if err := s.variantRules.Insert(ctx, rule); err != nil {
		return VariantPricingRule{}, wrapStoreError(err)
	}
	s.logger(ctx, "variant_rule_created", map[string]any{"ruleId": rule.ID, "priority": rule.Priority})
	return rule, nil
}

func (s *ruleService) UpdateVariantRule(ctx context.Context, cmd UpsertVariantRuleCommand) (VariantPricingRule, error) {
	update := cmd.Rule
	if strings.TrimSpace(update.ID) == "" {
		return VariantPricingRule{}, fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	if err := validateVariantRule(&update); err != nil {
		return VariantPricingRule{}, err
	}

	existing, err := s.variantRules.FindByID(ctx, update.ID)
	if err != nil {
		if isNotFound(err) {
			return VariantPricingRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, update.ID)
		}
		return VariantPricingRule{}, wrapStoreError(err)
	}

	update.CreatedAt = existing.CreatedAt
	update.DeletedAt = existing.DeletedAt
	update.UpdatedAt = s.now()

	if err := s.variantRules.Update(ctx, update); err != nil {
		return VariantPricingRule{}, wrapStoreError(err)
	}
	return update, nil
}

func (s *ruleService) DeleteVariantRule(ctx context.Context, ruleID string) error {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	if err := s.variantRules.SoftDelete(ctx, ruleID, s.now()); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
		}
		return wrapStoreError(err)
	}
	s.logger(ctx, "variant_rule_deleted", map[string]any{"ruleId": ruleID})
	return nil
}

func (s *ruleService) GetVariantRule(ctx context.Context, ruleID string) (VariantPricingRule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return VariantPricingRule{}, fmt.Errorf("%w: rule id is required", ErrRuleServiceInvalidInput)
	}
	rule, err := s.variantRules.FindByID(ctx, ruleID)
	if err != nil {
		if isNotFound(err) {
			return VariantPricingRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
		}
		return VariantPricingRule{}, wrapStoreError(err)
	}
	return rule, nil
}

func (s *ruleService) ListVariantRules(ctx context.Context, filter RuleListFilter) (domain.CursorPage[VariantPricingRule], error) {
	page, err := s.variantRules.List(ctx, repositories.RuleListFilter{
		CampaignID: strings.TrimSpace(filter.CampaignID),
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[VariantPricingRule]{}, wrapStoreError(err)
	}
	return page, nil
}

// Authoring-time validation rejects shapes the evaluator would refuse, so
// malformed rules surface to the author instead of degrading carts.
func validateDiscountRule(rule *DiscountRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrRuleServiceInvalidInput)
	}
	if rule.ValidFrom != nil && rule.ValidUntil != nil && rule.ValidUntil.Before(*rule.ValidFrom) {
		return fmt.Errorf("%w: validity window is inverted", ErrRuleServiceInvalidInput)
	}
	if err := validateConditions(rule.Conditions, false); err != nil {
		return err
	}
	return validateModifiers(rule.Modifiers, "")
}

func validateVariantRule(rule *VariantPricingRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrRuleServiceInvalidInput)
	}
	if rule.ValidFrom != nil && rule.ValidUntil != nil && rule.ValidUntil.Before(*rule.ValidFrom) {
		return fmt.Errorf("%w: validity window is inverted", ErrRuleServiceInvalidInput)
	}
	if err := validateConditions(rule.Conditions, true); err != nil {
		return err
	}
	return validateModifiers(rule.Modifiers, "")
}
