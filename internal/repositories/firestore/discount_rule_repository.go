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

const discountRuleCollection = "discountRules"

type discountRuleDocument struct {
	Name        string              `firestore:"name"`
	Description string              `firestore:"description,omitempty"`
	Priority    int                 `firestore:"priority"`
	Stackable   bool                `firestore:"stackable"`
	Active      bool                `firestore:"active"`
	ValidFrom   *time.Time          `firestore:"validFrom,omitempty"`
	ValidUntil  *time.Time          `firestore:"validUntil,omitempty"`
	Conditions  []conditionDocument `firestore:"conditions,omitempty"`
	Modifiers   []modifierDocument  `firestore:"modifiers,omitempty"`
	CouponID    string              `firestore:"couponId,omitempty"`
	CampaignIDs []string            `firestore:"campaignIds,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	DeletedAt   *time.Time          `firestore:"deletedAt"`
}

// DiscountRuleRepository persists cart-scoped discount rules in Firestore.
type DiscountRuleRepository struct {
	base     *pfirestore.BaseRepository[discountRuleDocument]
	provider *pfirestore.Provider
}

var _ repositories.DiscountRuleRepository = (*DiscountRuleRepository)(nil)

// NewDiscountRuleRepository constructs a Firestore-backed discount rule repository.
func NewDiscountRuleRepository(provider *pfirestore.Provider) (*DiscountRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("discount rule repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[discountRuleDocument](provider, discountRuleCollection, nil, nil)
	return &DiscountRuleRepository{base: base, provider: provider}, nil
}

func (r *DiscountRuleRepository) Insert(ctx context.Context, rule domain.DiscountRule) error {
	if r == nil || r.base == nil {
		return errors.New("discount rule repository not initialised")
	}
	if strings.TrimSpace(rule.ID) == "" {
		return errors.New("discount rule repository: rule id is required")
	}
	ref, err := r.base.DocumentRef(ctx, rule.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainDiscountRule(rule)); err != nil {
		return pfirestore.WrapError("discountRules.insert", err)
	}
	return nil
}

func (r *DiscountRuleRepository) Update(ctx context.Context, rule domain.DiscountRule) error {
	if r == nil || r.base == nil {
		return errors.New("discount rule repository not initialised")
	}
	if strings.TrimSpace(rule.ID) == "" {
		return errors.New("discount rule repository: rule id is required")
	}
	if _, err := r.base.Set(ctx, rule.ID, fromDomainDiscountRule(rule)); err != nil {
		return err
	}
	return nil
}

func (r *DiscountRuleRepository) SoftDelete(ctx context.Context, ruleID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("discount rule repository not initialised")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return errors.New("discount rule repository: rule id is required")
	}
	_, err := r.base.Update(ctx, ruleID, []firestore.Update{
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

func (r *DiscountRuleRepository) FindByID(ctx context.Context, ruleID string) (domain.DiscountRule, error) {
	if r == nil || r.base == nil {
		return domain.DiscountRule{}, errors.New("discount rule repository not initialised")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return domain.DiscountRule{}, errors.New("discount rule repository: rule id is required")
	}
	doc, err := r.base.Get(ctx, ruleID)
	if err != nil {
		return domain.DiscountRule{}, err
	}
	return toDomainDiscountRule(doc.ID, doc.Data), nil
}

func (r *DiscountRuleRepository) List(ctx context.Context, filter repositories.RuleListFilter) (domain.CursorPage[domain.DiscountRule], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.DiscountRule]{}, errors.New("discount rule repository not initialised")
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
			return domain.CursorPage[domain.DiscountRule]{}, fmt.Errorf("discount rule repository: invalid page token: %w", err)
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
		return domain.CursorPage[domain.DiscountRule]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeListToken(last.Data.UpdatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.DiscountRule, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainDiscountRule(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.DiscountRule]{Items: items, NextPageToken: nextToken}, nil
}

// ListCandidates returns every non-deleted rule. Window, activity, and
// condition filtering happens in the resolver.
func (r *DiscountRuleRepository) ListCandidates(ctx context.Context) ([]domain.DiscountRule, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("discount rule repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("deletedAt", "==", nil)
	})
	if err != nil {
		return nil, err
	}
	rules := make([]domain.DiscountRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, toDomainDiscountRule(doc.ID, doc.Data))
	}
	return rules, nil
}

func buildRuleListQuery(q firestore.Query, filter repositories.RuleListFilter) firestore.Query {
	if campaignID := strings.TrimSpace(filter.CampaignID); campaignID != "" {
		q = q.Where("campaignIds", "array-contains", campaignID)
	}
	if filter.ActiveOnly {
		q = q.Where("active", "==", true)
	}
	if !filter.IncludeDeleted {
		q = q.Where("deletedAt", "==", nil)
	}
	if filter.UpdatedRange.From != nil {
		q = q.Where("updatedAt", ">=", filter.UpdatedRange.From.UTC())
	}
	if filter.UpdatedRange.To != nil {
		q = q.Where("updatedAt", "<=", filter.UpdatedRange.To.UTC())
	}
	return q.OrderBy("updatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
}

func fromDomainDiscountRule(rule domain.DiscountRule) discountRuleDocument {
	return discountRuleDocument{
		Name:        strings.TrimSpace(rule.Name),
		Description: strings.TrimSpace(rule.Description),
		Priority:    rule.Priority,
		Stackable:   rule.Stackable,
		Active:      rule.Active,
		ValidFrom:   rule.ValidFrom,
		ValidUntil:  rule.ValidUntil,
		Conditions:  encodeConditions(rule.Conditions),
		Modifiers:   encodeModifiers(rule.Modifiers),
		CouponID:    strings.TrimSpace(rule.CouponID),
		CampaignIDs: rule.CampaignIDs,
		CreatedAt:   rule.CreatedAt.UTC(),
		UpdatedAt:   rule.UpdatedAt.UTC(),
		DeletedAt:   rule.DeletedAt,
	}
}

func toDomainDiscountRule(id string, doc discountRuleDocument) domain.DiscountRule {
	return domain.DiscountRule{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Priority:    doc.Priority,
		Stackable:   doc.Stackable,
		Active:      doc.Active,
		ValidFrom:   doc.ValidFrom,
		ValidUntil:  doc.ValidUntil,
		Conditions:  decodeConditions(doc.Conditions),
		Modifiers:   decodeModifiers(doc.Modifiers),
		CouponID:    doc.CouponID,
		CampaignIDs: doc.CampaignIDs,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		DeletedAt:   doc.DeletedAt,
	}
}
