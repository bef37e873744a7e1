package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

type couponStore struct {
	registry *Registry
	coupons  map[string]domain.Coupon
}

var _ repositories.CouponRepository = (*couponStore)(nil)

func (s *couponStore) Insert(_ context.Context, coupon domain.Coupon) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.coupons == nil {
		s.coupons = map[string]domain.Coupon{}
	}
	if _, exists := s.coupons[coupon.ID]; exists {
		return conflictErr("coupon %s already exists", coupon.ID)
	}
	code := coupon.NormalizedCode()
	for _, other := range s.coupons {
		if other.DeletedAt == nil && other.NormalizedCode() == code {
			return conflictErr("coupon code %s already taken", code)
		}
	}
	s.coupons[coupon.ID] = coupon
	return nil
}

func (s *couponStore) Update(_ context.Context, coupon domain.Coupon) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if _, exists := s.coupons[coupon.ID]; !exists {
		return notFoundErr("coupon %s not found", coupon.ID)
	}
	s.coupons[coupon.ID] = coupon
	return nil
}

func (s *couponStore) SoftDelete(_ context.Context, couponID string, deletedAt time.Time) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	coupon, exists := s.coupons[couponID]
	if !exists {
		return notFoundErr("coupon %s not found", couponID)
	}
	ts := deletedAt.UTC()
	coupon.DeletedAt = &ts
	coupon.UpdatedAt = ts
	s.coupons[couponID] = coupon
	return nil
}

func (s *couponStore) FindByID(_ context.Context, couponID string) (domain.Coupon, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	coupon, exists := s.coupons[couponID]
	if !exists {
		return domain.Coupon{}, notFoundErr("coupon %s not found", couponID)
	}
	return coupon, nil
}

func (s *couponStore) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	normalized := domain.NormalizeCouponCode(code)
	for _, coupon := range s.coupons {
		if coupon.DeletedAt == nil && coupon.NormalizedCode() == normalized {
			return coupon, nil
		}
	}
	return domain.Coupon{}, notFoundErr("coupon code %s not found", normalized)
}

func (s *couponStore) List(_ context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()

	prefix := domain.NormalizeCouponCode(filter.CodePrefix)
	items := make([]domain.Coupon, 0, len(s.coupons))
	for _, coupon := range s.coupons {
		if !filter.IncludeDeleted && coupon.DeletedAt != nil {
			continue
		}
		if filter.ActiveOnly && !coupon.Active {
			continue
		}
		if prefix != "" && !strings.HasPrefix(coupon.NormalizedCode(), prefix) {
			continue
		}
		items = append(items, coupon)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].NormalizedCode() != items[j].NormalizedCode() {
			return items[i].NormalizedCode() < items[j].NormalizedCode()
		}
		return items[i].ID < items[j].ID
	})
	return domain.CursorPage[domain.Coupon]{Items: items}, nil
}
