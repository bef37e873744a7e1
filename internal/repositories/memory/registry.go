// Package memory provides an in-memory repositories.Registry used by tests
// and local development when no Firestore project is available.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/veloura/api/internal/repositories"
)

// Registry keeps every collection in process memory behind one mutex. It is
// safe for concurrent use and cheap enough for request-level tests.
type Registry struct {
	mu sync.Mutex

	discountRules *discountRuleStore
	variantRules  *variantRuleStore
	coupons       *couponStore
	campaigns     *campaignStore
	redemptions   *redemptionStore
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() (*Registry, error) {
	registry := &Registry{}
	registry.discountRules = &discountRuleStore{registry: registry}
	registry.variantRules = &variantRuleStore{registry: registry}
	registry.coupons = &couponStore{registry: registry}
	registry.campaigns = &campaignStore{registry: registry}
	registry.redemptions = &redemptionStore{registry: registry}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		return nil, err
	}
	registry.health = health
	return registry, nil
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) DiscountRules() repositories.DiscountRuleRepository { return r.discountRules }

func (r *Registry) VariantRules() repositories.VariantRuleRepository { return r.variantRules }

func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

func (r *Registry) Campaigns() repositories.CampaignRepository { return r.campaigns }

func (r *Registry) Redemptions() repositories.RedemptionRepository { return r.redemptions }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx serialises fn against every other registry operation.
func (r *Registry) RunInTx(_ context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.Background())
}

// storeError implements repositories.RepositoryError for the in-memory stores.
type storeError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

var _ repositories.RepositoryError = (*storeError)(nil)

func (e *storeError) Error() string       { return e.msg }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return e.conflict }
func (e *storeError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(format string, args ...any) error {
	return &storeError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflictErr(format string, args ...any) error {
	return &storeError{msg: fmt.Sprintf(format, args...), conflict: true}
}
