package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage pairs a page of results with the continuation token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Window bounds an entity's validity in time. A nil bound is open-ended.
type Window struct {
	From  *time.Time
	Until *time.Time
}

// Contains reports whether ts falls inside the window, bounds inclusive.
func (w Window) Contains(ts time.Time) bool {
	if w.From != nil && ts.Before(*w.From) {
		return false
	}
	if w.Until != nil && ts.After(*w.Until) {
		return false
	}
	return true
}

// CampaignStatus captures the authored lifecycle state of a campaign. Stored
// status records intent; whether a campaign actually contributes rules at a
// given instant is recomputed from its window and scope at evaluation time.
type CampaignStatus string

const (
	// CampaignStatusDraft marks a campaign still being authored.
	CampaignStatusDraft CampaignStatus = "draft"
	// CampaignStatusScheduled marks a campaign approved for a future window.
	CampaignStatusScheduled CampaignStatus = "scheduled"
	// CampaignStatusActive marks a campaign cleared to run.
	CampaignStatusActive CampaignStatus = "active"
	// CampaignStatusPaused marks a temporarily suspended campaign.
	CampaignStatusPaused CampaignStatus = "paused"
	// CampaignStatusCompleted marks a campaign that finished its run.
	CampaignStatusCompleted CampaignStatus = "completed"
	// CampaignStatusCancelled marks a campaign withdrawn before completion.
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign groups discount rules under a shared schedule and market scope.
type Campaign struct {
	ID          string
	Name        string
	Description string
	Status      CampaignStatus
	StartsAt    *time.Time
	EndsAt      *time.Time
	// Zones and Channels restrict where the campaign applies. Empty means
	// unscoped: the campaign applies everywhere.
	Zones       []string
	Channels    []string
	DiscountIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EligibleAt reports whether the campaign can contribute rules at the given
// instant for the given zone and channel. Stored status must be active and the
// instant must fall inside the campaign window; a lapsed window makes an
// active campaign ineligible without any stored-status flip.
func (c Campaign) EligibleAt(ts time.Time, zone, channel string) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if !(Window{From: c.StartsAt, Until: c.EndsAt}).Contains(ts) {
		return false
	}
	if len(c.Zones) > 0 && !containsFold(c.Zones, zone) {
		return false
	}
	if len(c.Channels) > 0 && !containsFold(c.Channels, channel) {
		return false
	}
	return true
}

// Coupon is a code-gated discount with optional redemption caps. Codes match
// case-insensitively; the canonical stored form is lower case.
type Coupon struct {
	ID          string
	Code        string
	Description string
	Priority    int
	Stackable   bool
	Active      bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	// MaxUses caps total redemptions; MaxUsesPerUser caps redemptions per
	// customer. nil means unlimited.
	MaxUses        *int64
	MaxUsesPerUser *int64
	Conditions     []Condition
	Modifiers      []Modifier
	CampaignIDs    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// NormalizedCode returns the canonical lower-cased coupon code.
func (c Coupon) NormalizedCode() string {
	return NormalizeCouponCode(c.Code)
}

// NormalizeCouponCode lower-cases and trims a coupon code for lookups.
func NormalizeCouponCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// CouponUsage is the immutable record of one committed redemption.
type CouponUsage struct {
	ID       string
	CouponID string
	UserID   string
	OrderID  string
	Amount   int64
	Currency string
	UsedAt   time.Time
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}
