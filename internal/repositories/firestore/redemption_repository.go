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

const (
	redemptionCounterCollection = "redemptionCounters"
	couponUsageCollection       = "couponUsages"
)

type redemptionCounterDocument struct {
	Total     int64            `firestore:"total"`
	ByUser    map[string]int64 `firestore:"byUser,omitempty"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

type couponUsageDocument struct {
	CouponID string    `firestore:"couponId"`
	UserID   string    `firestore:"userId,omitempty"`
	OrderID  string    `firestore:"orderId"`
	Amount   int64     `firestore:"amount"`
	Currency string    `firestore:"currency"`
	UsedAt   time.Time `firestore:"usedAt"`
}

// RedemptionRepository owns redemption counters and immutable usage records in
// Firestore. Commit runs the caps check, the counter increment, and the usage
// record creation inside one transaction; the usage document ID is derived
// from the coupon and order so replays return the original record.
type RedemptionRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[redemptionCounterDocument]
	usage    *pfirestore.BaseRepository[couponUsageDocument]
}

var _ repositories.RedemptionRepository = (*RedemptionRepository)(nil)

// NewRedemptionRepository constructs a Firestore-backed redemption repository.
func NewRedemptionRepository(provider *pfirestore.Provider) (*RedemptionRepository, error) {
	if provider == nil {
		return nil, errors.New("redemption repository requires firestore provider")
	}
	return &RedemptionRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[redemptionCounterDocument](provider, redemptionCounterCollection, nil, nil),
		usage:    pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsageCollection, nil, nil),
	}, nil
}

// Counts reads the coupon's counter document outside any transaction. A
// missing counter means the coupon has never been redeemed.
func (r *RedemptionRepository) Counts(ctx context.Context, couponID string, userID string) (repositories.RedemptionCounts, error) {
	if r == nil || r.counters == nil {
		return repositories.RedemptionCounts{}, errors.New("redemption repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return repositories.RedemptionCounts{}, repositories.NewRedemptionError(repositories.RedemptionErrorInvalidInput, "coupon id is required", nil)
	}

	doc, err := r.counters.Get(ctx, couponID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return repositories.RedemptionCounts{ReadAt: time.Now().UTC()}, nil
		}
		return repositories.RedemptionCounts{}, err
	}

	counts := repositories.RedemptionCounts{
		Total:  doc.Data.Total,
		ReadAt: doc.ReadTime,
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		counts.ByUser = doc.Data.ByUser[userID]
	}
	return counts, nil
}

// Commit atomically records one redemption. The same (couponID, orderID) pair
// commits at most once: a replay reads the existing usage document and returns
// it without touching the counter.
func (r *RedemptionRepository) Commit(ctx context.Context, req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
	if r == nil || r.provider == nil {
		return domain.CouponUsage{}, errors.New("redemption repository not initialised")
	}
	couponID := strings.TrimSpace(req.CouponID)
	orderID := strings.TrimSpace(req.OrderID)
	if couponID == "" || orderID == "" {
		return domain.CouponUsage{}, repositories.NewRedemptionError(repositories.RedemptionErrorInvalidInput, "coupon id and order id are required", nil)
	}
	userID := strings.TrimSpace(req.UserID)
	usedAt := req.Now.UTC()
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	usageID := usageDocumentID(couponID, orderID)
	var committed domain.CouponUsage

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		usageRef, err := r.usage.DocumentRef(ctx, usageID)
		if err != nil {
			return err
		}
		counterRef, err := r.counters.DocumentRef(ctx, couponID)
		if err != nil {
			return err
		}

		usageSnap, err := tx.Get(usageRef)
		switch status.Code(err) {
		case codes.OK:
			var existing couponUsageDocument
			if err := usageSnap.DataTo(&existing); err != nil {
				return fmt.Errorf("firestore couponUsages decode %s: %w", usageID, err)
			}
			committed = toDomainCouponUsage(usageID, existing)
			return nil
		case codes.NotFound:
			// first commit for this order
		default:
			return err
		}

		counter := redemptionCounterDocument{}
		counterSnap, err := tx.Get(counterRef)
		switch status.Code(err) {
		case codes.OK:
			if err := counterSnap.DataTo(&counter); err != nil {
				return fmt.Errorf("firestore redemptionCounters decode %s: %w", couponID, err)
			}
		case codes.NotFound:
			// first redemption for this coupon
		default:
			return err
		}

		if req.MaxUses != nil && counter.Total >= *req.MaxUses {
			return repositories.NewRedemptionError(repositories.RedemptionErrorGlobalLimit,
				fmt.Sprintf("coupon %s reached its total cap of %d", couponID, *req.MaxUses), nil)
		}
		if userID != "" && req.MaxUsesPerUser != nil && counter.ByUser[userID] >= *req.MaxUsesPerUser {
			return repositories.NewRedemptionError(repositories.RedemptionErrorUserLimit,
				fmt.Sprintf("coupon %s reached its per-customer cap of %d", couponID, *req.MaxUsesPerUser), nil)
		}

		counter.Total++
		if userID != "" {
			if counter.ByUser == nil {
				counter.ByUser = map[string]int64{}
			}
			counter.ByUser[userID]++
		}
		counter.UpdatedAt = usedAt

		usageDoc := couponUsageDocument{
			CouponID: couponID,
			UserID:   userID,
			OrderID:  orderID,
			Amount:   req.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
			UsedAt:   usedAt,
		}

		if err := tx.Set(counterRef, counter); err != nil {
			return err
		}
		if err := tx.Create(usageRef, usageDoc); err != nil {
			return err
		}
		committed = toDomainCouponUsage(usageID, usageDoc)
		return nil
	})
	if err != nil {
		var redemptionErr *repositories.RedemptionError
		if errors.As(err, &redemptionErr) {
			return domain.CouponUsage{}, redemptionErr
		}
		return domain.CouponUsage{}, pfirestore.WrapError("redemptions.commit", err)
	}
	return committed, nil
}

func (r *RedemptionRepository) ListUsage(ctx context.Context, couponID string, pager domain.Pagination) (domain.CursorPage[domain.CouponUsage], error) {
	if r == nil || r.usage == nil {
		return domain.CursorPage[domain.CouponUsage]{}, errors.New("redemption repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return domain.CursorPage[domain.CouponUsage]{}, repositories.NewRedemptionError(repositories.RedemptionErrorInvalidInput, "coupon id is required", nil)
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.CouponUsage]{}, fmt.Errorf("redemption repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.usage.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("couponId", "==", couponID).
			OrderBy("usedAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.CouponUsage]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeListToken(last.Data.UsedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.CouponUsage, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCouponUsage(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.CouponUsage]{Items: items, NextPageToken: nextToken}, nil
}

func usageDocumentID(couponID, orderID string) string {
	return couponID + "_" + orderID
}

func toDomainCouponUsage(id string, doc couponUsageDocument) domain.CouponUsage {
	return domain.CouponUsage{
		ID:       id,
		CouponID: doc.CouponID,
		UserID:   doc.UserID,
		OrderID:  doc.OrderID,
		Amount:   doc.Amount,
		Currency: doc.Currency,
		UsedAt:   doc.UsedAt,
	}
}
