package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/platform/httpx"
	"github.com/veloura/api/internal/platform/pagination"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds limit")
)

const defaultMaxBodySize = 64 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded request body into T, writing the error
// response itself when the payload is missing, oversized, or malformed.
func decodeJSONBody[T any](ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var req T
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(ts *time.Time) *string {
	if ts == nil || ts.IsZero() {
		return nil
	}
	formatted := formatTime(*ts)
	return &formatted
}

func parseTimePtr(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", *value)
	}
	utc := ts.UTC()
	return &utc, nil
}

// parsePagination maps the shared paging query parameters onto the domain
// pager. Defaulting, capping and token validation live in the pagination
// package so every list endpoint behaves the same.
func parsePagination(r *http.Request) (domain.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

func parseBoolQuery(r *http.Request, name string) bool {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

// clientKey derives the rate-limit bucket for a request: the customer header
// when present, the remote address otherwise.
func clientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Customer-ID")); id != "" {
		return id
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

type conditionPayload struct {
	Type         string   `json:"type"`
	Operator     string   `json:"operator,omitempty"`
	Value        *int64   `json:"value,omitempty"`
	UpperValue   *int64   `json:"upper_value,omitempty"`
	Values       []string `json:"values,omitempty"`
	AttributeKey string   `json:"attribute_key,omitempty"`
	DaysOfWeek   []int    `json:"days_of_week,omitempty"`
	HourFrom     *int     `json:"hour_from,omitempty"`
	HourTo       *int     `json:"hour_to,omitempty"`
}

type modifierPayload struct {
	Kind        string        `json:"kind"`
	BasisPoints int64         `json:"basis_points,omitempty"`
	Amount      int64         `json:"amount,omitempty"`
	Currency    string        `json:"currency,omitempty"`
	Tiers       []tierPayload `json:"tiers,omitempty"`
}

type tierPayload struct {
	Threshold   int64  `json:"threshold"`
	Kind        string `json:"kind"`
	BasisPoints int64  `json:"basis_points,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

func conditionsFromPayload(payloads []conditionPayload) []domain.Condition {
	if len(payloads) == 0 {
		return nil
	}
	conditions := make([]domain.Condition, 0, len(payloads))
	for _, p := range payloads {
		condition := domain.Condition{
			Type:         domain.ConditionType(strings.TrimSpace(p.Type)),
			Operator:     domain.ConditionOperator(strings.TrimSpace(p.Operator)),
			Value:        p.Value,
			UpperValue:   p.UpperValue,
			Values:       p.Values,
			AttributeKey: strings.TrimSpace(p.AttributeKey),
			HourFrom:     p.HourFrom,
			HourTo:       p.HourTo,
		}
		for _, day := range p.DaysOfWeek {
			condition.DaysOfWeek = append(condition.DaysOfWeek, time.Weekday(day))
		}
		conditions = append(conditions, condition)
	}
	return conditions
}

func conditionsToPayload(conditions []domain.Condition) []conditionPayload {
	if len(conditions) == 0 {
		return nil
	}
	payloads := make([]conditionPayload, 0, len(conditions))
	for _, c := range conditions {
		payload := conditionPayload{
			Type:         string(c.Type),
			Operator:     string(c.Operator),
			Value:        c.Value,
			UpperValue:   c.UpperValue,
			Values:       c.Values,
			AttributeKey: c.AttributeKey,
			HourFrom:     c.HourFrom,
			HourTo:       c.HourTo,
		}
		for _, day := range c.DaysOfWeek {
			payload.DaysOfWeek = append(payload.DaysOfWeek, int(day))
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func modifiersFromPayload(payloads []modifierPayload) []domain.Modifier {
	if len(payloads) == 0 {
		return nil
	}
	modifiers := make([]domain.Modifier, 0, len(payloads))
	for _, p := range payloads {
		modifier := domain.Modifier{
			Kind:        domain.ModifierKind(strings.TrimSpace(p.Kind)),
			BasisPoints: p.BasisPoints,
			Amount:      p.Amount,
			Currency:    strings.ToUpper(strings.TrimSpace(p.Currency)),
		}
		for _, tier := range p.Tiers {
			modifier.Tiers = append(modifier.Tiers, domain.TierEntry{
				Threshold:   tier.Threshold,
				Kind:        domain.ModifierKind(strings.TrimSpace(tier.Kind)),
				BasisPoints: tier.BasisPoints,
				Amount:      tier.Amount,
				Currency:    strings.ToUpper(strings.TrimSpace(tier.Currency)),
			})
		}
		modifiers = append(modifiers, modifier)
	}
	return modifiers
}

func modifiersToPayload(modifiers []domain.Modifier) []modifierPayload {
	if len(modifiers) == 0 {
		return nil
	}
	payloads := make([]modifierPayload, 0, len(modifiers))
	for _, m := range modifiers {
		payload := modifierPayload{
			Kind:        string(m.Kind),
			BasisPoints: m.BasisPoints,
			Amount:      m.Amount,
			Currency:    m.Currency,
		}
		for _, tier := range m.Tiers {
			payload.Tiers = append(payload.Tiers, tierPayload{
				Threshold:   tier.Threshold,
				Kind:        string(tier.Kind),
				BasisPoints: tier.BasisPoints,
				Amount:      tier.Amount,
				Currency:    tier.Currency,
			})
		}
		payloads = append(payloads, payload)
	}
	return payloads
}
