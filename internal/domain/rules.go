package domain

import "time"

// ConditionType enumerates the closed set of supported condition kinds.
// Cart-scoped rules accept the first eight; variant pricing rules accept
// size_based, quantity_based, customer_group_based, and time_based.
type ConditionType string

const (
	// ConditionCartTotal matches the cart subtotal in minor units.
	ConditionCartTotal ConditionType = "cart_total"
	// ConditionItemQty matches the total item quantity in the cart.
	ConditionItemQty ConditionType = "item_qty"
	// ConditionProduct matches product identifiers present in the cart.
	ConditionProduct ConditionType = "product"
	// ConditionCategory matches category identifiers present in the cart.
	ConditionCategory ConditionType = "category"
	// ConditionBrand matches brand identifiers present in the cart.
	ConditionBrand ConditionType = "brand"
	// ConditionCollection matches collection identifiers present in the cart.
	ConditionCollection ConditionType = "collection"
	// ConditionAttributeValue matches a named attribute against allowed values.
	ConditionAttributeValue ConditionType = "attribute_value"
	// ConditionPriority matches the customer's priority tier numerically.
	ConditionPriority ConditionType = "priority"
	// ConditionSizeBased matches a line item's size attribute.
	ConditionSizeBased ConditionType = "size_based"
	// ConditionQuantityBased matches a line item's quantity numerically.
	ConditionQuantityBased ConditionType = "quantity_based"
	// ConditionCustomerGroup matches the customer's group memberships.
	ConditionCustomerGroup ConditionType = "customer_group_based"
	// ConditionTimeBased matches recurring day-of-week and hour windows.
	ConditionTimeBased ConditionType = "time_based"
)

// ConditionOperator enumerates comparison operators. Numeric condition types
// use GTE, LTE, EQ, and Between; identity types use In and EQ.
type ConditionOperator string

const (
	// OperatorGTE matches values greater than or equal to the threshold.
	OperatorGTE ConditionOperator = "gte"
	// OperatorLTE matches values less than or equal to the threshold.
	OperatorLTE ConditionOperator = "lte"
	// OperatorEQ matches values exactly equal to the threshold.
	OperatorEQ ConditionOperator = "eq"
	// OperatorBetween matches values inside an inclusive range.
	OperatorBetween ConditionOperator = "between"
	// OperatorIn matches any overlap with the condition's identifier set.
	OperatorIn ConditionOperator = "in"
)

// Condition is one predicate inside a rule. All conditions on a rule are
// AND-ed; a rule with no conditions matches every context. Which fields are
// meaningful depends on Type; mismatched shapes are a malformed rule, never
// silently coerced.
type Condition struct {
	Type     ConditionType
	Operator ConditionOperator
	// Value and UpperValue carry numeric thresholds (minor units for
	// cart_total, counts for quantity types, tier index for priority).
	// UpperValue is the inclusive upper bound for Between.
	Value      *int64
	UpperValue *int64
	// Values carries the identifier set for identity condition types and the
	// allowed values for attribute_value.
	Values []string
	// AttributeKey names the attribute an attribute_value condition inspects.
	AttributeKey string
	// DaysOfWeek and HourFrom/HourTo describe recurring time_based windows.
	// Hours are inclusive bounds on the context timestamp's hour in UTC.
	DaysOfWeek []time.Weekday
	HourFrom   *int
	HourTo     *int
}

// ModifierKind enumerates the supported price adjustment kinds.
type ModifierKind string

const (
	// ModifierPercentage reduces the amount by a basis-point percentage.
	ModifierPercentage ModifierKind = "percentage"
	// ModifierFixedAmount subtracts a fixed number of minor units.
	ModifierFixedAmount ModifierKind = "fixed_amount"
	// ModifierFixedPrice replaces the amount outright.
	ModifierFixedPrice ModifierKind = "fixed_price"
	// ModifierTiered selects a sub-modifier from quantity or amount tiers.
	ModifierTiered ModifierKind = "tiered"
)

// Modifier is one price adjustment in a rule's ordered modifier chain.
// Percentage magnitudes are basis points (1000 = 10%). Fixed kinds carry a
// currency; applying one to a differently denominated amount is an authoring
// error surfaced as a currency mismatch.
type Modifier struct {
	Kind        ModifierKind
	BasisPoints int64
	Amount      int64
	Currency    string
	Tiers       []TierEntry
}

// TierEntry is one rung of a tiered modifier. The highest threshold not
// exceeding the context quantity or amount wins; below every threshold the
// modifier is a no-op.
type TierEntry struct {
	Threshold   int64
	Kind        ModifierKind
	BasisPoints int64
	Amount      int64
	Currency    string
}

// DiscountRule is a cart-scoped promotion: conditions are AND-ed and the
// modifier chain folds over the cart subtotal. Cart discounts are exclusive
// by default; Stackable opts a rule into composing with other stackables.
type DiscountRule struct {
	ID          string
	Name        string
	Description string
	Priority    int
	Stackable   bool
	Active      bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Conditions  []Condition
	Modifiers   []Modifier
	// CouponID links the rule to a coupon; such rules only apply when the
	// coupon code is present in the evaluation context and redeemable.
	CouponID    string
	CampaignIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// VariantPricingRule is a line-scoped price adjustment. Variant rules always
// compose: every matching rule applies to the line's unit price in resolver
// order, with no exclusivity.
type VariantPricingRule struct {
	ID          string
	Name        string
	Description string
	Priority    int
	Active      bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	Conditions  []Condition
	Modifiers   []Modifier
	CampaignIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}
