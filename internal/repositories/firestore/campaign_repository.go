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

const campaignCollection = "campaigns"

type campaignDocument struct {
	Name        string     `firestore:"name"`
	Description string     `firestore:"description,omitempty"`
	Status      string     `firestore:"status"`
	StartsAt    *time.Time `firestore:"startsAt,omitempty"`
	EndsAt      *time.Time `firestore:"endsAt,omitempty"`
	// Zones and channels are stored lower-cased so equality filters line up
	// with the fold-insensitive matching the domain applies.
	Zones       []string  `firestore:"zones,omitempty"`
	Channels    []string  `firestore:"channels,omitempty"`
	DiscountIDs []string  `firestore:"discountIds,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// CampaignRepository persists campaign schedules and market scope in Firestore.
type CampaignRepository struct {
	base     *pfirestore.BaseRepository[campaignDocument]
	provider *pfirestore.Provider
}

var _ repositories.CampaignRepository = (*CampaignRepository)(nil)

// NewCampaignRepository constructs a Firestore-backed campaign repository.
func NewCampaignRepository(provider *pfirestore.Provider) (*CampaignRepository, error) {
	if provider == nil {
		return nil, errors.New("campaign repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[campaignDocument](provider, campaignCollection, nil, nil)
	return &CampaignRepository{base: base, provider: provider}, nil
}

func (r *CampaignRepository) Insert(ctx context.Context, campaign domain.Campaign) error {
	if r == nil || r.base == nil {
		return errors.New("campaign repository not initialised")
	}
	if strings.TrimSpace(campaign.ID) == "" {
		return errors.New("campaign repository: campaign id is required")
	}
	ref, err := r.base.DocumentRef(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainCampaign(campaign)); err != nil {
		return pfirestore.WrapError("campaigns.insert", err)
	}
	return nil
}

func (r *CampaignRepository) Update(ctx context.Context, campaign domain.Campaign) error {
	if r == nil || r.base == nil {
		return errors.New("campaign repository not initialised")
	}
	if strings.TrimSpace(campaign.ID) == "" {
		return errors.New("campaign repository: campaign id is required")
	}
	if _, err := r.base.Set(ctx, campaign.ID, fromDomainCampaign(campaign)); err != nil {
		return err
	}
	return nil
}

func (r *CampaignRepository) FindByID(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if r == nil || r.base == nil {
		return domain.Campaign{}, errors.New("campaign repository not initialised")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Campaign{}, errors.New("campaign repository: campaign id is required")
	}
	doc, err := r.base.Get(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	return toDomainCampaign(doc.ID, doc.Data), nil
}

// FindByIDs fetches the requested campaigns in one round trip. Unknown IDs are
// simply absent from the result.
func (r *CampaignRepository) FindByIDs(ctx context.Context, campaignIDs []string) (map[string]domain.Campaign, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("campaign repository not initialised")
	}
	out := make(map[string]domain.Campaign, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(campaignIDs))
	for _, id := range campaignIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(campaignCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("campaigns.findByIds", err)
	}
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc campaignDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("campaign repository: decode %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = toDomainCampaign(snap.Ref.ID, doc)
	}
	return out, nil
}

func (r *CampaignRepository) List(ctx context.Context, filter repositories.CampaignListFilter) (domain.CursorPage[domain.Campaign], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Campaign]{}, errors.New("campaign repository not initialised")
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
			return domain.CursorPage[domain.Campaign]{}, fmt.Errorf("campaign repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		if trimmed := strings.TrimSpace(string(status)); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		if zone := strings.ToLower(strings.TrimSpace(filter.Zone)); zone != "" {
			q = q.Where("zones", "array-contains", zone)
		}
		if channel := strings.ToLower(strings.TrimSpace(filter.Channel)); channel != "" {
			q = q.Where("channels", "array-contains", channel)
		}
		if filter.DateRange.From != nil {
			q = q.Where("updatedAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("updatedAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("updatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Campaign]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeListToken(last.Data.UpdatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Campaign, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCampaign(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Campaign]{Items: items, NextPageToken: nextToken}, nil
}

func fromDomainCampaign(campaign domain.Campaign) campaignDocument {
	return campaignDocument{
		Name:        strings.TrimSpace(campaign.Name),
		Description: strings.TrimSpace(campaign.Description),
		Status:      string(campaign.Status),
		StartsAt:    campaign.StartsAt,
		EndsAt:      campaign.EndsAt,
		Zones:       normaliseScopeValues(campaign.Zones),
		Channels:    normaliseScopeValues(campaign.Channels),
		DiscountIDs: campaign.DiscountIDs,
		CreatedAt:   campaign.CreatedAt.UTC(),
		UpdatedAt:   campaign.UpdatedAt.UTC(),
	}
}

func toDomainCampaign(id string, doc campaignDocument) domain.Campaign {
	return domain.Campaign{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Status:      domain.CampaignStatus(doc.Status),
		StartsAt:    doc.StartsAt,
		EndsAt:      doc.EndsAt,
		Zones:       doc.Zones,
		Channels:    doc.Channels,
		DiscountIDs: doc.DiscountIDs,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func normaliseScopeValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
