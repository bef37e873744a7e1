package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

// priceScale is the fixed-point scale used for intermediate price math. All
// amounts are carried as minor units times priceScale so chained modifiers
// never round against each other; rounding to minor units happens exactly
// once, at the end of a chain.
const priceScale = 10000

// basisPointDenominator: percentage modifiers are stored in basis points.
const basisPointDenominator = 10000

type scaledAmount int64

func toScaled(minorUnits int64) scaledAmount {
	return scaledAmount(minorUnits * priceScale)
}

// roundToMinor rounds half up to the currency minor unit. Amounts in the
// pipeline are clamped non-negative before rounding.
func (s scaledAmount) roundToMinor() int64 {
	if s <= 0 {
		return 0
	}
	return (int64(s) + priceScale/2) / priceScale
}

// roundSigned rounds half away from zero and keeps the sign. Cart deltas can
// legitimately go negative when a fixed_price override raises the total, and
// that surcharge must survive rounding.
func (s scaledAmount) roundSigned() int64 {
	if s < 0 {
		return -(-s).roundToMinor()
	}
	return s.roundToMinor()
}

// applyModifierChain folds the rule's modifiers over a base amount, in
// declaration order. tierMetric feeds tiered threshold selection (line
// quantity for variant rules, cart subtotal for cart rules). The result stays
// in fixed-point form so callers can keep chaining across rules.
func applyModifierChain(modifiers []Modifier, base scaledAmount, tierMetric int64, currency string) (scaledAmount, error) {
	adjusted := base
	for _, modifier := range modifiers {
		next, err := applyModifier(modifier, adjusted, tierMetric, currency)
		if err != nil {
			return base, err
		}
		adjusted = next
	}
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted, nil
}

func applyModifier(modifier Modifier, base scaledAmount, tierMetric int64, currency string) (scaledAmount, error) {
	switch modifier.Kind {
	case domain.ModifierPercentage:
		return applyPercentage(base, modifier.BasisPoints)
	case domain.ModifierFixedAmount:
		if err := checkModifierCurrency(modifier.Currency, currency); err != nil {
			return base, err
		}
		if modifier.Amount < 0 {
			return base, fmt.Errorf("%w: fixed_amount modifier must be non-negative", ErrMalformedRule)
		}
		adjusted := base - toScaled(modifier.Amount)
		if adjusted < 0 {
			adjusted = 0
		}
		return adjusted, nil
	case domain.ModifierFixedPrice:
		if err := checkModifierCurrency(modifier.Currency, currency); err != nil {
			return base, err
		}
		if modifier.Amount < 0 {
			return base, fmt.Errorf("%w: fixed_price modifier must be non-negative", ErrMalformedRule)
		}
		// Overrides the running amount, discarding earlier chain effects.
		return toScaled(modifier.Amount), nil
	case domain.ModifierTiered:
		return applyTiered(modifier, base, tierMetric, currency)
	default:
		return base, fmt.Errorf("%w: unknown modifier kind %q", ErrMalformedRule, modifier.Kind)
	}
}

func applyPercentage(base scaledAmount, basisPoints int64) (scaledAmount, error) {
	if basisPoints < 0 || basisPoints > basisPointDenominator {
		return base, fmt.Errorf("%w: percentage modifier must be between 0 and 10000 basis points", ErrMalformedRule)
	}
	return scaledAmount(int64(base) * (basisPointDenominator - basisPoints) / basisPointDenominator), nil
}

// applyTiered selects the highest tier whose threshold does not exceed the
// metric and applies that tier's sub-modifier. No qualifying tier is a no-op.
func applyTiered(modifier Modifier, base scaledAmount, tierMetric int64, currency string) (scaledAmount, error) {
	if len(modifier.Tiers) == 0 {
		return base, fmt.Errorf("%w: tiered modifier declares no tiers", ErrMalformedRule)
	}

	var selected *TierEntry
	for i := range modifier.Tiers {
		tier := &modifier.Tiers[i]
		if tier.Threshold < 0 {
			return base, fmt.Errorf("%w: tier threshold must be non-negative", ErrMalformedRule)
		}
		if tier.Threshold > tierMetric {
			continue
		}
		if selected == nil || tier.Threshold > selected.Threshold {
			selected = tier
		}
	}
	if selected == nil {
		return base, nil
	}

	switch selected.Kind {
	case domain.ModifierPercentage:
		return applyPercentage(base, selected.BasisPoints)
	case domain.ModifierFixedAmount:
		if err := checkModifierCurrency(selected.Currency, currency); err != nil {
			return base, err
		}
		if selected.Amount < 0 {
			return base, fmt.Errorf("%w: tier amount must be non-negative", ErrMalformedRule)
		}
		adjusted := base - toScaled(selected.Amount)
		if adjusted < 0 {
			adjusted = 0
		}
		return adjusted, nil
	default:
		return base, fmt.Errorf("%w: tier sub-kind %q must be percentage or fixed_amount", ErrMalformedRule, selected.Kind)
	}
}

// checkModifierCurrency enforces that amount-bearing modifiers share the
// evaluation currency. The engine never converts between currencies.
func checkModifierCurrency(modifierCurrency, contextCurrency string) error {
	modifierCurrency = strings.ToUpper(strings.TrimSpace(modifierCurrency))
	if modifierCurrency == "" {
		return fmt.Errorf("%w: amount modifier is missing a currency", ErrMalformedRule)
	}
	if modifierCurrency != strings.ToUpper(strings.TrimSpace(contextCurrency)) {
		return fmt.Errorf("%w: modifier currency %s does not match context currency %s", ErrCurrencyMismatch, modifierCurrency, contextCurrency)
	}
	return nil
}

// validateModifiers is the authoring-time shape check shared by the admin
// services. It runs every modifier against a probe amount so malformed rules
// are rejected before they are stored.
func validateModifiers(modifiers []Modifier, currency string) error {
	if len(modifiers) == 0 {
		return fmt.Errorf("%w: rule declares no modifiers", ErrMalformedRule)
	}
	probe := toScaled(1000)
	for _, modifier := range modifiers {
		mod := modifier
		if mod.Currency == "" && (mod.Kind == domain.ModifierFixedAmount || mod.Kind == domain.ModifierFixedPrice) {
			return fmt.Errorf("%w: amount modifier is missing a currency", ErrMalformedRule)
		}
		// Probe against the modifier's own currency so authoring-time checks
		// validate shape, not deployment currency.
		probeCurrency := mod.Currency
		if probeCurrency == "" {
			probeCurrency = currency
		}
		if _, err := applyModifier(mod, probe, 1, probeCurrency); err != nil {
			return err
		}
	}
	return nil
}

// validateConditions is the authoring-time counterpart for condition shapes.
// lineScoped controls whether line-scoped condition types are permitted.
func validateConditions(conditions []Condition, lineScoped bool) error {
	probeCtx := EvaluationContext{Timestamp: time.Now().UTC()}
	var probeLine *ContextLine
	if lineScoped {
		probeLine = &ContextLine{Quantity: 1, Attributes: map[string]string{}}
	}
	for _, condition := range conditions {
		if _, err := evaluateCondition(condition, probeCtx, probeLine); err != nil {
			return err
		}
	}
	return nil
}
