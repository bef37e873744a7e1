package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/veloura/api/internal/domain"
	pfirestore "github.com/veloura/api/internal/platform/firestore"
	"github.com/veloura/api/internal/repositories"
)

const couponCollection = "coupons"

type couponDocument struct {
	// Code holds the normalised (lower-cased) form so lookups stay
	// case-insensitive without a separate index collection.
	Code           string              `firestore:"code"`
	Description    string              `firestore:"description,omitempty"`
	Priority       int                 `firestore:"priority"`
	Stackable      bool                `firestore:"stackable"`
	Active         bool                `firestore:"active"`
	ValidFrom      *time.Time          `firestore:"validFrom,omitempty"`
	ValidUntil     *time.Time          `firestore:"validUntil,omitempty"`
	MaxUses        *int64              `firestore:"maxUses,omitempty"`
	MaxUsesPerUser *int64              `firestore:"maxUsesPerUser,omitempty"`
	Conditions     []conditionDocument `firestore:"conditions,omitempty"`
	Modifiers      []modifierDocument  `firestore:"modifiers,omitempty"`
	CampaignIDs    []string            `firestore:"campaignIds,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	DeletedAt      *time.Time          `firestore:"deletedAt"`
}

// CouponRepository persists coupon definitions in Firestore keyed by coupon ID,
// with the normalised code as a queryable field.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base, provider: provider}, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	if strings.TrimSpace(coupon.ID) == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	ref, err := r.base.DocumentRef(ctx, coupon.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainCoupon(coupon)); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	if strings.TrimSpace(coupon.ID) == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	if _, err := r.base.Set(ctx, coupon.ID, fromDomainCoupon(coupon)); err != nil {
		return err
	}
	return nil
}

func (r *CouponRepository) SoftDelete(ctx context.Context, couponID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	_, err := r.base.Update(ctx, couponID, []firestore.Update{
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon id is required")
	}
	doc, err := r.base.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return toDomainCoupon(doc.ID, doc.Data), nil
}

// FindByCode resolves a coupon by its case-insensitive code. Soft-deleted
// coupons do not resolve, which also frees their code for reuse.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalized := domain.NormalizeCouponCode(code)
	if normalized == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Where("deletedAt", "==", nil).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.WrapError("coupons.findByCode", status.Errorf(codes.NotFound, "coupon %s not found", normalized))
	}
	return toDomainCoupon(docs[0].ID, docs[0].Data), nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
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
		tokenCode, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupon repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenCode, tokenID}
	}

	prefix := domain.NormalizeCouponCode(filter.CodePrefix)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if prefix != "" {
			q = q.Where("code", ">=", prefix).Where("code", "<", prefix+"\uf8ff")
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if !filter.IncludeDeleted {
			q = q.Where("deletedAt", "==", nil)
		}
		q = q.OrderBy("code", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.Code, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCoupon(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Coupon]{Items: items, NextPageToken: nextToken}, nil
}

func fromDomainCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:           coupon.NormalizedCode(),
		Description:    strings.TrimSpace(coupon.Description),
		Priority:       coupon.Priority,
		Stackable:      coupon.Stackable,
		Active:         coupon.Active,
		ValidFrom:      coupon.ValidFrom,
		ValidUntil:     coupon.ValidUntil,
		MaxUses:        coupon.MaxUses,
		MaxUsesPerUser: coupon.MaxUsesPerUser,
		Conditions:     encodeConditions(coupon.Conditions),
		Modifiers:      encodeModifiers(coupon.Modifiers),
		CampaignIDs:    coupon.CampaignIDs,
		CreatedAt:      coupon.CreatedAt.UTC(),
		UpdatedAt:      coupon.UpdatedAt.UTC(),
		DeletedAt:      coupon.DeletedAt,
	}
}

func toDomainCoupon(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:             id,
		Code:           doc.Code,
		Description:    doc.Description,
		Priority:       doc.Priority,
		Stackable:      doc.Stackable,
		Active:         doc.Active,
		ValidFrom:      doc.ValidFrom,
		ValidUntil:     doc.ValidUntil,
		MaxUses:        doc.MaxUses,
		MaxUsesPerUser: doc.MaxUsesPerUser,
		Conditions:     decodeConditions(doc.Conditions),
		Modifiers:      decodeModifiers(doc.Modifiers),
		CampaignIDs:    doc.CampaignIDs,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		DeletedAt:      doc.DeletedAt,
	}
}
