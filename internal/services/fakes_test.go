package services

import (
	"context"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/repositories"
)

// fakeRepoError satisfies repositories.RepositoryError for driving the
// services' error mapping in tests.
type fakeRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errFakeNotFound    = &fakeRepoError{msg: "not found", notFound: true}
	errFakeUnavailable = &fakeRepoError{msg: "store unavailable", unavailable: true}
)

type fakeDiscountRuleRepo struct {
	rules      map[string]domain.DiscountRule
	candidates []domain.DiscountRule
	listErr    error
	inserted   []domain.DiscountRule
	updated    []domain.DiscountRule
	deleted    []string
}

var _ repositories.DiscountRuleRepository = (*fakeDiscountRuleRepo)(nil)

func (f *fakeDiscountRuleRepo) Insert(_ context.Context, rule domain.DiscountRule) error {
	f.inserted = append(f.inserted, rule)
	return nil
}

func (f *fakeDiscountRuleRepo) Update(_ context.Context, rule domain.DiscountRule) error {
	f.updated = append(f.updated, rule)
	return nil
}

func (f *fakeDiscountRuleRepo) SoftDelete(_ context.Context, ruleID string, _ time.Time) error {
	if f.rules != nil {
		if _, ok := f.rules[ruleID]; !ok {
			return errFakeNotFound
		}
	}
	f.deleted = append(f.deleted, ruleID)
	return nil
}

func (f *fakeDiscountRuleRepo) FindByID(_ context.Context, ruleID string) (domain.DiscountRule, error) {
	rule, ok := f.rules[ruleID]
	if !ok {
		return domain.DiscountRule{}, errFakeNotFound
	}
	return rule, nil
}

func (f *fakeDiscountRuleRepo) List(_ context.Context, _ repositories.RuleListFilter) (domain.CursorPage[domain.DiscountRule], error) {
	return domain.CursorPage[domain.DiscountRule]{Items: f.candidates}, nil
}

func (f *fakeDiscountRuleRepo) ListCandidates(_ context.Context) ([]domain.DiscountRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.candidates, nil
}

type fakeVariantRuleRepo struct {
	rules      map[string]domain.VariantPricingRule
	candidates []domain.VariantPricingRule
	listErr    error
	inserted   []domain.VariantPricingRule
	updated    []domain.VariantPricingRule
	deleted    []string
}

var _ repositories.VariantRuleRepository = (*fakeVariantRuleRepo)(nil)

func (f *fakeVariantRuleRepo) Insert(_ context.Context, rule domain.VariantPricingRule) error {
	f.inserted = append(f.inserted, rule)
	return nil
}

func (f *fakeVariantRuleRepo) Update(_ context.Context, rule domain.VariantPricingRule) error {
	f.updated = append(f.updated, rule)
	return nil
}

func (f *fakeVariantRuleRepo) SoftDelete(_ context.Context, ruleID string, _ time.Time) error {
	if f.rules != nil {
		if _, ok := f.rules[ruleID]; !ok {
			return errFakeNotFound
		}
	}
	f.deleted = append(f.deleted, ruleID)
	return nil
}

func (f *fakeVariantRuleRepo) FindByID(_ context.Context, ruleID string) (domain.VariantPricingRule, error) {
	rule, ok := f.rules[ruleID]
	if !ok {
		return domain.VariantPricingRule{}, errFakeNotFound
	}
	return rule, nil
}

func (f *fakeVariantRuleRepo) List(_ context.Context, _ repositories.RuleListFilter) (domain.CursorPage[domain.VariantPricingRule], error) {
	return domain.CursorPage[domain.VariantPricingRule]{Items: f.candidates}, nil
}

func (f *fakeVariantRuleRepo) ListCandidates(_ context.Context) ([]domain.VariantPricingRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.candidates, nil
}

type fakeCouponRepo struct {
	byID     map[string]domain.Coupon
	byCode   map[string]domain.Coupon
	findErr  error
	inserted []domain.Coupon
	updated  []domain.Coupon
	deleted  []string
}

var _ repositories.CouponRepository = (*fakeCouponRepo)(nil)

func (f *fakeCouponRepo) Insert(_ context.Context, coupon domain.Coupon) error {
	f.inserted = append(f.inserted, coupon)
	return nil
}

func (f *fakeCouponRepo) Update(_ context.Context, coupon domain.Coupon) error {
	f.updated = append(f.updated, coupon)
	return nil
}

func (f *fakeCouponRepo) SoftDelete(_ context.Context, couponID string, _ time.Time) error {
	if f.byID != nil {
		if _, ok := f.byID[couponID]; !ok {
			return errFakeNotFound
		}
	}
	f.deleted = append(f.deleted, couponID)
	return nil
}

func (f *fakeCouponRepo) FindByID(_ context.Context, couponID string) (domain.Coupon, error) {
	if f.findErr != nil {
		return domain.Coupon{}, f.findErr
	}
	coupon, ok := f.byID[couponID]
	if !ok {
		return domain.Coupon{}, errFakeNotFound
	}
	return coupon, nil
}

func (f *fakeCouponRepo) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	if f.findErr != nil {
		return domain.Coupon{}, f.findErr
	}
	coupon, ok := f.byCode[code]
	if !ok {
		return domain.Coupon{}, errFakeNotFound
	}
	return coupon, nil
}

func (f *fakeCouponRepo) List(_ context.Context, _ repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	items := make([]domain.Coupon, 0, len(f.byID))
	for _, coupon := range f.byID {
		items = append(items, coupon)
	}
	return domain.CursorPage[domain.Coupon]{Items: items}, nil
}

type fakeCampaignRepo struct {
	campaigns map[string]domain.Campaign
	updated   []domain.Campaign
	inserted  []domain.Campaign
}

var _ repositories.CampaignRepository = (*fakeCampaignRepo)(nil)

func (f *fakeCampaignRepo) Insert(_ context.Context, campaign domain.Campaign) error {
	f.inserted = append(f.inserted, campaign)
	return nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, campaign domain.Campaign) error {
	if f.campaigns != nil {
		f.campaigns[campaign.ID] = campaign
	}
	f.updated = append(f.updated, campaign)
	return nil
}

func (f *fakeCampaignRepo) FindByID(_ context.Context, campaignID string) (domain.Campaign, error) {
	campaign, ok := f.campaigns[campaignID]
	if !ok {
		return domain.Campaign{}, errFakeNotFound
	}
	return campaign, nil
}

func (f *fakeCampaignRepo) FindByIDs(_ context.Context, campaignIDs []string) (map[string]domain.Campaign, error) {
	out := make(map[string]domain.Campaign, len(campaignIDs))
	for _, id := range campaignIDs {
		if campaign, ok := f.campaigns[id]; ok {
			out[id] = campaign
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) List(_ context.Context, _ repositories.CampaignListFilter) (domain.CursorPage[domain.Campaign], error) {
	items := make([]domain.Campaign, 0, len(f.campaigns))
	for _, campaign := range f.campaigns {
		items = append(items, campaign)
	}
	return domain.CursorPage[domain.Campaign]{Items: items}, nil
}

type fakeRedemptionRepo struct {
	counts    map[string]repositories.RedemptionCounts
	countsErr error
	commitFn  func(repositories.CommitRedemptionRequest) (domain.CouponUsage, error)
	usage     []domain.CouponUsage
}

var _ repositories.RedemptionRepository = (*fakeRedemptionRepo)(nil)

func (f *fakeRedemptionRepo) Counts(_ context.Context, couponID, _ string) (repositories.RedemptionCounts, error) {
	if f.countsErr != nil {
		return repositories.RedemptionCounts{}, f.countsErr
	}
	return f.counts[couponID], nil
}

func (f *fakeRedemptionRepo) Commit(_ context.Context, req repositories.CommitRedemptionRequest) (domain.CouponUsage, error) {
	if f.commitFn != nil {
		return f.commitFn(req)
	}
	usage := domain.CouponUsage{
		ID:       "cu_" + req.CouponID + "_" + req.OrderID,
		CouponID: req.CouponID,
		UserID:   req.UserID,
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		UsedAt:   req.Now,
	}
	f.usage = append(f.usage, usage)
	return usage, nil
}

func (f *fakeRedemptionRepo) ListUsage(_ context.Context, couponID string, _ domain.Pagination) (domain.CursorPage[domain.CouponUsage], error) {
	var items []domain.CouponUsage
	for _, usage := range f.usage {
		if usage.CouponID == couponID {
			items = append(items, usage)
		}
	}
	return domain.CursorPage[domain.CouponUsage]{Items: items}, nil
}

// fakeCampaignEligibility satisfies CampaignService for engine tests. Only
// EligibleCampaigns is expected to run.
type fakeCampaignEligibility struct {
	eligible map[string]bool
	err      error
}

var _ CampaignService = (*fakeCampaignEligibility)(nil)

func (f *fakeCampaignEligibility) CreateCampaign(context.Context, UpsertCampaignCommand) (Campaign, error) {
	panic("unexpected call: CreateCampaign")
}

func (f *fakeCampaignEligibility) UpdateCampaign(context.Context, UpsertCampaignCommand) (Campaign, error) {
	panic("unexpected call: UpdateCampaign")
}

func (f *fakeCampaignEligibility) GetCampaign(context.Context, string) (Campaign, error) {
	panic("unexpected call: GetCampaign")
}

func (f *fakeCampaignEligibility) ListCampaigns(context.Context, CampaignListFilter) (domain.CursorPage[Campaign], error) {
	panic("unexpected call: ListCampaigns")
}

func (f *fakeCampaignEligibility) Transition(context.Context, CampaignTransitionCommand) (Campaign, error) {
	panic("unexpected call: Transition")
}

func (f *fakeCampaignEligibility) EligibleCampaigns(_ context.Context, campaignIDs []string, _ time.Time, _, _ string) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]bool, len(campaignIDs))
	for _, id := range campaignIDs {
		out[id] = f.eligible[id]
	}
	return out, nil
}

type fakeLedger struct {
	decisions map[string]domain.RedemptionDecision
	checkErr  error
	commitFn  func(CommitRedemptionCommand) (CouponUsage, error)
	commits   []CommitRedemptionCommand
}

var _ RedemptionLedger = (*fakeLedger)(nil)

func (f *fakeLedger) Check(_ context.Context, couponID, _ string) (domain.RedemptionDecision, error) {
	if f.checkErr != nil {
		return domain.RedemptionDeniedGlobalLimit, f.checkErr
	}
	if decision, ok := f.decisions[couponID]; ok {
		return decision, nil
	}
	return domain.RedemptionAllowed, nil
}

func (f *fakeLedger) Commit(_ context.Context, cmd CommitRedemptionCommand) (CouponUsage, error) {
	f.commits = append(f.commits, cmd)
	if f.commitFn != nil {
		return f.commitFn(cmd)
	}
	return CouponUsage{
		ID:       "cu_" + cmd.CouponID + "_" + cmd.OrderID,
		CouponID: cmd.CouponID,
		UserID:   cmd.UserID,
		OrderID:  cmd.OrderID,
		Amount:   cmd.Amount,
		Currency: cmd.Currency,
	}, nil
}

type fakePublisher struct {
	published []RedemptionCommittedMessage
	err       error
}

var _ RedemptionEventPublisher = (*fakePublisher)(nil)

func (f *fakePublisher) PublishRedemptionCommitted(_ context.Context, message RedemptionCommittedMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, message)
	return "msg-1", nil
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func timePtr(ts time.Time) *time.Time { return &ts }
