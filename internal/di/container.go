package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloura/api/internal/platform/config"
	"github.com/veloura/api/internal/repositories"
	"github.com/veloura/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing   services.PricingService
	Ledger    services.RedemptionLedger
	Coupons   services.CouponService
	Rules     services.RuleService
	Campaigns services.CampaignService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises container assembly.
type ContainerOption func(*containerOptions)

type containerOptions struct {
	publisher services.RedemptionEventPublisher
	logger    func(context.Context, string, map[string]any)
	build     services.BuildInfo
	clock     func() time.Time
}

// WithRedemptionPublisher injects the event publisher used when redemptions commit.
// When absent, finalized redemptions are stored but no event is emitted.
func WithRedemptionPublisher(publisher services.RedemptionEventPublisher) ContainerOption {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithEventLogger routes service-level event logs to the supplied sink.
func WithEventLogger(logger func(context.Context, string, map[string]any)) ContainerOption {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo records build metadata surfaced by the system service.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the time source used by every service. Tests use this to
// pin rule windows and redemption timestamps.
func WithClock(clock func() time.Time) ContainerOption {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides a Firestore
// registry, while tests can supply the in-memory one.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock == nil {
		options.clock = time.Now
	}

	svc, err := buildServices(reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, options containerOptions) (Services, error) {
	var svc Services

	ledger, err := services.NewRedemptionLedger(services.RedemptionLedgerDeps{
		Redemptions: reg.Redemptions(),
		Coupons:     reg.Coupons(),
		Now:         options.clock,
		Logger:      options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build redemption ledger: %w", err)
	}
	svc.Ledger = ledger

	campaigns, err := services.NewCampaignService(services.CampaignServiceDeps{
		Campaigns: reg.Campaigns(),
		Now:       options.clock,
		Logger:    options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build campaign service: %w", err)
	}
	svc.Campaigns = campaigns

	coupons, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:     reg.Coupons(),
		Redemptions: reg.Redemptions(),
		Ledger:      ledger,
		Now:         options.clock,
		Logger:      options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = coupons

	rules, err := services.NewRuleService(services.RuleServiceDeps{
		DiscountRules: reg.DiscountRules(),
		VariantRules:  reg.VariantRules(),
		Now:           options.clock,
		Logger:        options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rule service: %w", err)
	}
	svc.Rules = rules

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		DiscountRules:        reg.DiscountRules(),
		VariantRules:         reg.VariantRules(),
		Coupons:              reg.Coupons(),
		Campaigns:            campaigns,
		Ledger:               ledger,
		Publisher:            options.publisher,
		EnableVariantPricing: cfg.Features.EnableVariantPricing,
		EnableCoupons:        cfg.Features.EnableCoupons,
		Now:                  options.clock,
		Logger:               options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	build := options.build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = options.clock().UTC()
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            options.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
