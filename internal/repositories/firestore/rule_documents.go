package firestore

import (
	"errors"
	"strings"
	"time"

	domain "github.com/veloura/api/internal/domain"
	"github.com/veloura/api/internal/platform/pagination"
)

// Condition and modifier payloads are shared by discount rules, variant rules,
// and coupons, so the document shapes live here.

type conditionDocument struct {
	Type         string   `firestore:"type"`
	Operator     string   `firestore:"operator,omitempty"`
	Value        *int64   `firestore:"value,omitempty"`
	UpperValue   *int64   `firestore:"upperValue,omitempty"`
	Values       []string `firestore:"values,omitempty"`
	AttributeKey string   `firestore:"attributeKey,omitempty"`
	DaysOfWeek   []int    `firestore:"daysOfWeek,omitempty"`
	HourFrom     *int     `firestore:"hourFrom,omitempty"`
	HourTo       *int     `firestore:"hourTo,omitempty"`
}

type modifierDocument struct {
	Kind        string         `firestore:"kind"`
	BasisPoints int64          `firestore:"basisPoints,omitempty"`
	Amount      int64          `firestore:"amount,omitempty"`
	Currency    string         `firestore:"currency,omitempty"`
	Tiers       []tierDocument `firestore:"tiers,omitempty"`
}

type tierDocument struct {
	Threshold   int64  `firestore:"threshold"`
	Kind        string `firestore:"kind"`
	BasisPoints int64  `firestore:"basisPoints,omitempty"`
	Amount      int64  `firestore:"amount,omitempty"`
	Currency    string `firestore:"currency,omitempty"`
}

func encodeConditions(conditions []domain.Condition) []conditionDocument {
	if len(conditions) == 0 {
		return nil
	}
	docs := make([]conditionDocument, 0, len(conditions))
	for _, c := range conditions {
		doc := conditionDocument{
			Type:         string(c.Type),
			Operator:     string(c.Operator),
			Value:        c.Value,
			UpperValue:   c.UpperValue,
			Values:       c.Values,
			AttributeKey: strings.TrimSpace(c.AttributeKey),
			HourFrom:     c.HourFrom,
			HourTo:       c.HourTo,
		}
		if len(c.DaysOfWeek) > 0 {
			doc.DaysOfWeek = make([]int, 0, len(c.DaysOfWeek))
			for _, day := range c.DaysOfWeek {
				doc.DaysOfWeek = append(doc.DaysOfWeek, int(day))
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

func decodeConditions(docs []conditionDocument) []domain.Condition {
	if len(docs) == 0 {
		return nil
	}
	conditions := make([]domain.Condition, 0, len(docs))
	for _, doc := range docs {
		condition := domain.Condition{
			Type:         domain.ConditionType(doc.Type),
			Operator:     domain.ConditionOperator(doc.Operator),
			Value:        doc.Value,
			UpperValue:   doc.UpperValue,
			Values:       doc.Values,
			AttributeKey: doc.AttributeKey,
			HourFrom:     doc.HourFrom,
			HourTo:       doc.HourTo,
		}
		if len(doc.DaysOfWeek) > 0 {
			condition.DaysOfWeek = make([]time.Weekday, 0, len(doc.DaysOfWeek))
			for _, day := range doc.DaysOfWeek {
				condition.DaysOfWeek = append(condition.DaysOfWeek, time.Weekday(day))
			}
		}
		conditions = append(conditions, condition)
	}
	return conditions
}

func encodeModifiers(modifiers []domain.Modifier) []modifierDocument {
	if len(modifiers) == 0 {
		return nil
	}
	docs := make([]modifierDocument, 0, len(modifiers))
	for _, m := range modifiers {
		doc := modifierDocument{
			Kind:        string(m.Kind),
			BasisPoints: m.BasisPoints,
			Amount:      m.Amount,
			Currency:    strings.ToUpper(strings.TrimSpace(m.Currency)),
		}
		for _, tier := range m.Tiers {
			doc.Tiers = append(doc.Tiers, tierDocument{
				Threshold:   tier.Threshold,
				Kind:        string(tier.Kind),
				BasisPoints: tier.BasisPoints,
				Amount:      tier.Amount,
				Currency:    strings.ToUpper(strings.TrimSpace(tier.Currency)),
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

func decodeModifiers(docs []modifierDocument) []domain.Modifier {
	if len(docs) == 0 {
		return nil
	}
	modifiers := make([]domain.Modifier, 0, len(docs))
	for _, doc := range docs {
		modifier := domain.Modifier{
			Kind:        domain.ModifierKind(doc.Kind),
			BasisPoints: doc.BasisPoints,
			Amount:      doc.Amount,
			Currency:    doc.Currency,
		}
		for _, tier := range doc.Tiers {
			modifier.Tiers = append(modifier.Tiers, domain.TierEntry{
				Threshold:   tier.Threshold,
				Kind:        domain.ModifierKind(tier.Kind),
				BasisPoints: tier.BasisPoints,
				Amount:      tier.Amount,
				Currency:    tier.Currency,
			})
		}
		modifiers = append(modifiers, modifier)
	}
	return modifiers
}

// List cursors encode the last document's sort key pair so pages stay stable
// under concurrent writes.

func encodeListToken(sortValue string, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{sortValue, docID}})
	if err != nil {
		return ""
	}
	return token
}

func decodeListToken(token string) (string, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return "", "", err
	}
	if len(cursor.StartAfter) != 2 {
		return "", "", errors.New("invalid token structure")
	}
	sortValue, ok := cursor.StartAfter[0].(string)
	docID, okID := cursor.StartAfter[1].(string)
	if !ok || !okID {
		return "", "", errors.New("invalid token structure")
	}
	return sortValue, docID, nil
}

func encodeTimeListToken(ts time.Time, docID string) string {
	return encodeListToken(ts.UTC().Format(time.RFC3339Nano), docID)
}

func decodeTimeListToken(token string) (time.Time, string, error) {
	sortValue, docID, err := decodeListToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, err := time.Parse(time.RFC3339Nano, sortValue)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}
