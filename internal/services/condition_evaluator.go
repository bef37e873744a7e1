package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
)

// windowOpen gates a rule on its activity flag and validity window. The check
// is shared by every condition type and by the resolver itself.
func windowOpen(active bool, from, until *time.Time, now time.Time) bool {
	if !active {
		return false
	}
	return domain.Window{From: from, Until: until}.Contains(now)
}

// evaluateConditions reports whether every condition matches the context. An
// empty condition list matches unconditionally. Line-scoped conditions receive
// the line under evaluation; passing nil for a cart-scoped rule is fine as
// long as the rule carries no line-scoped condition.
func evaluateConditions(conditions []domain.Condition, evalCtx EvaluationContext, line *ContextLine) (bool, error) {
	for _, condition := range conditions {
		ok, err := evaluateCondition(condition, evalCtx, line)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(condition domain.Condition, evalCtx EvaluationContext, line *ContextLine) (bool, error) {
	switch condition.Type {
	case domain.ConditionCartTotal:
		return compareNumeric(condition, evalCtx.Subtotal())
	case domain.ConditionItemQty:
		return compareNumeric(condition, evalCtx.TotalQuantity())
	case domain.ConditionPriority:
		return compareNumeric(condition, evalCtx.CustomerPriority)
	case domain.ConditionQuantityBased:
		if line == nil {
			return false, scopeError(condition.Type)
		}
		return compareNumeric(condition, line.Quantity)
	case domain.ConditionSizeBased:
		if line == nil {
			return false, scopeError(condition.Type)
		}
		size, err := strconv.ParseInt(strings.TrimSpace(line.Size), 10, 64)
		if err != nil {
			// Non-numeric sizes cannot satisfy a numeric size gate.
			return false, nil
		}
		return compareNumeric(condition, size)
	case domain.ConditionProduct:
		return matchIdentity(condition, identityScope(evalCtx, line, func(l ContextLine) []string {
			return []string{l.ProductID, l.VariantID}
		})...)
	case domain.ConditionCategory:
		return matchIdentity(condition, identityScope(evalCtx, line, func(l ContextLine) []string {
			return l.CategoryIDs
		})...)
	case domain.ConditionBrand:
		return matchIdentity(condition, identityScope(evalCtx, line, func(l ContextLine) []string {
			return []string{l.BrandID}
		})...)
	case domain.ConditionCollection:
		return matchIdentity(condition, identityScope(evalCtx, line, func(l ContextLine) []string {
			return l.CollectionIDs
		})...)
	case domain.ConditionAttributeValue:
		key := strings.TrimSpace(condition.AttributeKey)
		if key == "" {
			return false, fmt.Errorf("%w: attribute_value condition requires an attribute key", ErrMalformedRule)
		}
		return matchIdentity(condition, identityScope(evalCtx, line, func(l ContextLine) []string {
			return []string{l.Attributes[key]}
		})...)
	case domain.ConditionCustomerGroup:
		return matchIdentity(condition, evalCtx.CustomerGroups...)
	case domain.ConditionTimeBased:
		return matchTimeWindow(condition, evalCtx.Timestamp)
	default:
		return false, fmt.Errorf("%w: unknown condition type %q", ErrMalformedRule, condition.Type)
	}
}

func compareNumeric(condition domain.Condition, actual int64) (bool, error) {
	if condition.Value == nil {
		return false, fmt.Errorf("%w: %s condition requires a numeric value", ErrMalformedRule, condition.Type)
	}
	switch condition.Operator {
	case domain.OperatorGTE:
		return actual >= *condition.Value, nil
	case domain.OperatorLTE:
		return actual <= *condition.Value, nil
	case domain.OperatorEQ:
		return actual == *condition.Value, nil
	case domain.OperatorBetween:
		if condition.UpperValue == nil {
			return false, fmt.Errorf("%w: between operator requires an upper bound", ErrMalformedRule)
		}
		if *condition.UpperValue < *condition.Value {
			return false, fmt.Errorf("%w: between range is inverted", ErrMalformedRule)
		}
		return actual >= *condition.Value && actual <= *condition.UpperValue, nil
	case domain.OperatorIn:
		return false, fmt.Errorf("%w: operator in is not valid for numeric condition %s", ErrMalformedRule, condition.Type)
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrMalformedRule, condition.Operator)
	}
}

func matchIdentity(condition domain.Condition, actual ...string) (bool, error) {
	if len(condition.Values) == 0 {
		return false, fmt.Errorf("%w: %s condition requires an identifier set", ErrMalformedRule, condition.Type)
	}
	switch condition.Operator {
	case domain.OperatorIn, domain.OperatorEQ:
		for _, candidate := range actual {
			if candidate == "" {
				continue
			}
			for _, want := range condition.Values {
				if candidate == want {
					return true, nil
				}
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: operator %q is not valid for identity condition %s", ErrMalformedRule, condition.Operator, condition.Type)
	}
}

// matchTimeWindow checks the recurring schedule of a time_based condition.
// Hours are half-open [from, to) in the context timestamp's location; a range
// with from > to wraps past midnight.
func matchTimeWindow(condition domain.Condition, ts time.Time) (bool, error) {
	if len(condition.DaysOfWeek) == 0 && condition.HourFrom == nil && condition.HourTo == nil {
		return false, fmt.Errorf("%w: time_based condition declares no schedule", ErrMalformedRule)
	}
	if (condition.HourFrom == nil) != (condition.HourTo == nil) {
		return false, fmt.Errorf("%w: time_based condition requires both hour bounds", ErrMalformedRule)
	}
	if condition.HourFrom != nil {
		from, to := *condition.HourFrom, *condition.HourTo
		if from < 0 || from > 23 || to < 0 || to > 24 {
			return false, fmt.Errorf("%w: time_based hour bounds out of range", ErrMalformedRule)
		}
	}

	if len(condition.DaysOfWeek) > 0 {
		matched := false
		for _, day := range condition.DaysOfWeek {
			if ts.Weekday() == day {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	if condition.HourFrom == nil {
		return true, nil
	}
	hour := ts.Hour()
	from, to := *condition.HourFrom, *condition.HourTo
	if from == to {
		return false, nil
	}
	if from < to {
		return hour >= from && hour < to, nil
	}
	return hour >= from || hour < to, nil
}

func scopeError(conditionType domain.ConditionType) error {
	return fmt.Errorf("%w: %s condition is line-scoped and cannot gate a cart-level rule", ErrMalformedRule, conditionType)
}

// identityScope collects the identifiers an identity condition compares
// against: the single line under evaluation for variant rules, or the union
// across all cart lines for cart-level rules.
func identityScope(evalCtx EvaluationContext, line *ContextLine, pick func(ContextLine) []string) []string {
	if line != nil {
		return pick(*line)
	}
	var out []string
	for _, l := range evalCtx.Lines {
		out = append(out, pick(l)...)
	}
	return out
}
