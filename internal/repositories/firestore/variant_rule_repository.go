package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/veloura/api/internal/domain"
	pfirestore "github.com/veloura/api/internal/platform/firestore"
	"github.com/veloura/api/internal/repositories"
)

const variantRuleCollection = "variantRules"

type variantRuleDocument struct {
	Name        string              `firestore:"name"`
	Description string              `firestore:"description,omitempty"`
	Priority    int                 `firestore:"priority"`
	Active      bool                `firestore:"active"`
	ValidFrom   *time.Time          `firestore:"validFrom,omitempty"`
	ValidUntil  *time.Time          `firestore:"validUntil,omitempty"`
	Conditions  []conditionDocument `firestore:"conditions,omitempty"`
	Modifiers   []modifierDocument  `firestore:"modifiers,omitempty"`
	CampaignIDs []string            `firestore:"campaignIds,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	DeletedAt   *time.Time          `firestore:"deletedAt"`
}

// VariantRuleRepository persists line-scoped variant pricing rules in Firestore.
type VariantRuleRepository struct {
	base     *pfirestore.BaseRepository[variantRuleDocument]
	provider *pfirestore.Provider
}

var _ repositories.VariantRuleRepository = (*VariantRuleRepository)(nil)

// NewVariantRuleRepository constructs a Firestore-backed variant rule repository.
func NewVariantRuleRepository(provider *pfirestore.Provider) (*VariantRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("variant rule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantRuleDocument](provider, variantRuleCollection, nil, nil)
	return &VariantRuleRepository{base: base, provider: provider}, nil
}

func (r *VariantRuleRepository) Insert(ctx context.Context, rule domain.VariantPricingRule) error {
	if r == nil || r.base == nil {
		return errors.New("variant rule repository not initialised")
	}
	if strings.TrimSpace(rule.ID) == "" {
		return errors.New("variant rule repository: rule id is required")
	}
	ref, err := r.base.DocumentRef(ctx, rule.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainVariantRule(rule)); err != nil {
		return pfirestore.WrapError("variantRules.insert", err)
	}
	return nil
}

func (r *VariantRuleRepository) Update(ctx context.Context, rule domain.VariantPricingRule) error {
	if r == nil || r.base == nil {
		return errors.New("variant rule repository not initialised")
	}
	if strings.TrimSpace(rule.ID) == "" {
		return errors.New("variant rule repository: rule id is required")
	}
	if _, err := r.base.Set(ctx, rule.ID, fromDomainVariantRule(rule)); err != nil {
		return err
	}
	return nil
}

func (r *VariantRuleRepository) SoftDelete(ctx context.Context, ruleID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("variant rule repository not initialised")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return errors.New("variant rule repository: rule id is required")
	}
	_, err := r.base.Update(ctx, ruleID, []firestore.Update{
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

func (r *VariantRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.VariantPricingRule, error) {
	if r == nil || r.base == nil {
		return domain.VariantPricingRule{}, errors.New("variant rule repository not initialised")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return domain.VariantPricingRule{}, errors.New("variant rule repository: rule id is required")
	}
	doc, err := r.base.Get(ctx, ruleID)
	if err != nil {
		return domain.VariantPricingRule{}, err
	}
	return toDomainVariantRule(doc.ID, doc.Data), nil
}

func (r *VariantRuleRepository) List(ctx context.Context, filter repositories.RuleListFilter) (domain.CursorPage[domain.VariantPricingRule], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.VariantPricingRule]{}, errors.New("variant rule repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.VariantPricingRule]{}, fmt.Errorf("variant rule repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = buildRuleListQuery(q, filter)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.VariantPricingRule]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeListToken(last.Data.UpdatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.VariantPricingRule, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainVariantRule(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.VariantPricingRule]{Items: items, NextPageToken: nextToken}, nil
}

func (r *VariantRuleRepository) ListCandidates(ctx context.Context) ([]domain.VariantPricingRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("variant rule repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("deletedAt", "==", nil)
	})
	if err != nil {
		return nil, err
	}
	rules := make([]domain.VariantPricingRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, toDomainVariantRule(doc.ID, doc.Data))
	}
	return rules, nil
}

func fromDomainVariantRule(rule domain.VariantPricingRule) variantRuleDocument {
	return variantRuleDocument{
		Name:        strings.TrimSpace(rule.Name),
		Description: strings.TrimSpace(rule.Description),
		Priority:    rule.Priority,
		Active:      rule.Active,
		ValidFrom:   rule.ValidFrom,
		ValidUntil:  rule.ValidUntil,
		Conditions:  encodeConditions(rule.Conditions),
		Modifiers:   encodeModifiers(rule.Modifiers),
		CampaignIDs: rule.CampaignIDs,
		CreatedAt:   rule.CreatedAt.UTC(),
		UpdatedAt:   rule.UpdatedAt.UTC(),
		DeletedAt:   rule.DeletedAt,
	}
}

func toDomainVariantRule(id string, doc variantRuleDocument) domain.VariantPricingRule {
	return domain.VariantPricingRule{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Priority:    doc.Priority,
		Active:      doc.Active,
		ValidFrom:   doc.ValidFrom,
		ValidUntil:  doc.ValidUntil,
		Conditions:  decodeConditions(doc.Conditions),
		Modifiers:   decodeModifiers(doc.Modifiers),
		CampaignIDs: doc.CampaignIDs,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		DeletedAt:   doc.DeletedAt,
	}
}
