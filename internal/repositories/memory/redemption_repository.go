package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

type redemptionCounter struct {
	total  int64
	byUser map[string]int64
}

type redemptionStore struct {
	registry *Registry
	counters map[string]*redemptionCounter
	usage    map[string]domain.CouponUsage
}

var _ repositories.RedemptionRepository = (*redemptionStore)(nil)

func (s *redemptionStore) Counts(_ context.Context, couponID string, userID string) (repositories.RedemptionCounts, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	counts := repositories.RedemptionCounts{ReadAt: time.Now().UTC()}
	counter, exists := s.counters[couponID]
	if !exists {
		return counts, nil
	}
	counts.Total = counter.total
	if userID = strings.TrimSpace(userID); userID != "" {
		counts.ByUser = counter.byUser[userID]
	}
	return counts, nil
}

// Commit enforces the caps and records the usage under one lock, which gives
// the same all-or-nothing behaviour the Firestore transaction provides.
func (s *redemptionStore) Commit(_ context.Context, req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
	couponID := strings.TrimSpace(req.CouponID)
	orderID := strings.TrimSpace(req.OrderID)
	if couponID == "" || orderID == "" {
		return domain.CouponUsage{}, repositories.NewRedemptionError(repositories.RedemptionErrorInvalidInput, "coupon id and order id are required", nil)
	}

	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	usageID := couponID + "_" + orderID
	if existing, exists := s.usage[usageID]; exists {
		return existing, nil
	}

	counter := s.counters[couponID]
	if counter == nil {
		counter = &redemptionCounter{byUser: map[string]int64{}}
	}

	userID := strings.TrimSpace(req.UserID)
	if req.MaxUses != nil && counter.total >= *req.MaxUses {
		return domain.CouponUsage{}, repositories.NewRedemptionError(repositories.RedemptionErrorGlobalLimit,
			fmt.Sprintf("coupon %s reached its total cap of %d", couponID, *req.MaxUses), nil)
	}
	if userID != "" && req.MaxUsesPerUser != nil && counter.byUser[userID] >= *req.MaxUsesPerUser {
		return domain.CouponUsage{}, repositories.NewRedemptionError(repositories.RedemptionErrorUserLimit,
			fmt.Sprintf("coupon %s reached its per-customer cap of %d", couponID, *req.MaxUsesPerUser), nil)
	}

	usedAt := req.Now.UTC()
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	counter.total++
	if userID != "" {
		counter.byUser[userID]++
	}
	if s.counters == nil {
		s.counters = map[string]*redemptionCounter{}
	}
	s.counters[couponID] = counter

	usage := domain.CouponUsage{
		ID:       usageID,
		CouponID: couponID,
		UserID:   userID,
		OrderID:  orderID,
		Amount:   req.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		UsedAt:   usedAt,
	}
	if s.usage == nil {
		s.usage = map[string]domain.CouponUsage{}
	}
	s.usage[usageID] = usage
	return usage, nil
}

func (s *redemptionStore) ListUsage(_ context.Context, couponID string, _ domain.Pagination) (domain.CursorPage[domain.CouponUsage], error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	items := make([]domain.CouponUsage, 0)
	for _, usage := range s.usage {
		if usage.CouponID == couponID {
			items = append(items, usage)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UsedAt.Equal(items[j].UsedAt) {
			return items[i].UsedAt.After(items[j].UsedAt)
		}
		return items[i].ID > items[j].ID
	})
	return domain.CursorPage[domain.CouponUsage]{Items: items}, nil
}
