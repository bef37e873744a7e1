package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/veloura/api/internal/platform/firestore"
	"github.com/veloura/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	discountRules *DiscountRuleRepository
	variantRules  *VariantRuleRepository
	coupons       *CouponRepository
	campaigns     *CampaignRepository
	redemptions   *RedemptionRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository off a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}

	discountRules, err := NewDiscountRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	variantRules, err := NewVariantRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	campaigns, err := NewCampaignRepository(provider)
	if err != nil {
		return nil, err
	}
	redemptions, err := NewRedemptionRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				iter := client.Collection(couponCollection).Limit(1).Documents(ctx)
				defer iter.Stop()
				_, err = iter.GetAll()
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		discountRules: discountRules,
		variantRules:  variantRules,
		coupons:       coupons,
		campaigns:     campaigns,
		redemptions:   redemptions,
		health:        health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) DiscountRules() repositories.DiscountRuleRepository { return r.discountRules }

func (r *Registry) VariantRules() repositories.VariantRuleRepository { return r.variantRules }

func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

func (r *Registry) Campaigns() repositories.CampaignRepository { return r.campaigns }

func (r *Registry) Redemptions() repositories.RedemptionRepository { return r.redemptions }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx opens a Firestore transaction for the duration of fn. The
// redemption commit is the only multi-document writer and carries its own
// transaction, so fn here runs against the plain repositories; the transaction
// exists to give callers a consistent retry boundary.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("firestore registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
