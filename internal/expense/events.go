// Package expense folds expense events from the expenses service into the
// group summary view, de-duplicating redeliveries by event identity.
package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"splitgroups/internal/summary/models"
)

// Inbound event types.
const (
	TypeExpenseCreated = "expense.created"
	TypeSummaryUpdated = "expenses.group.summary.updated"
)

var (
	// ErrUnknownType marks events this consumer does not handle.
	ErrUnknownType = errors.New("unhandled event type")
	// ErrMalformed marks events missing a required field or not valid JSON.
	ErrMalformed = errors.New("malformed event")
)

// Event is a decoded inbound expense event. The set of implementations is closed.
type Event interface {
	EventID() string
	GroupID() string
	Delta() models.AggregateDelta
	isExpenseEvent()
}

// ExpenseCreated is a single new expense.
type ExpenseCreated struct {
	ID         string
	Group      string
	Amount     decimal.Decimal
	Currency   string
	OccurredAt *time.Time
}

// SummaryUpdated carries a pre-aggregated contribution for a group.
type SummaryUpdated struct {
	ID            string
	Group         string
	TotalAmount   decimal.Decimal
	ExpensesCount int64
	LastExpenseAt *time.Time
	Currency      string
}

func (e ExpenseCreated) EventID() string { return e.ID }
func (e ExpenseCreated) GroupID() string { return e.Group }
func (e SummaryUpdated) EventID() string { return e.ID }
func (e SummaryUpdated) GroupID() string { return e.Group }

func (ExpenseCreated) isExpenseEvent() {}
func (SummaryUpdated) isExpenseEvent() {}

func (e ExpenseCreated) Delta() models.AggregateDelta {
	return models.AggregateDelta{
		Amount:        e.Amount,
		Count:         1,
		LastExpenseAt: e.OccurredAt,
		Currency:      currencyOrDefault(e.Currency),
	}
}

func (e SummaryUpdated) Delta() models.AggregateDelta {
	return models.AggregateDelta{
		Amount:        e.TotalAmount,
		Count:         e.ExpensesCount,
		LastExpenseAt: e.LastExpenseAt,
		Currency:      currencyOrDefault(e.Currency),
	}
}

type envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	GroupID   string          `json:"groupId"`
	Data      json.RawMessage `json:"data"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp *time.Time      `json:"timestamp"`
}

type expenseCreatedData struct {
	ExpenseID string           `json:"expenseId"`
	GroupID   string           `json:"groupId"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
}

type summaryUpdatedPayload struct {
	TotalAmount   *decimal.Decimal `json:"totalAmount"`
	ExpensesCount int64            `json:"expensesCount"`
	LastExpenseAt *time.Time       `json:"lastExpenseAt"`
	Currency      string           `json:"currency"`
}

// Decode parses a raw message. It returns ErrUnknownType for event types this
// consumer ignores and ErrMalformed (wrapped with detail) for anything else it
// cannot use.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeExpenseCreated:
		return decodeExpenseCreated(env)
	case TypeSummaryUpdated:
		return decodeSummaryUpdated(env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeExpenseCreated(env envelope) (Event, error) {
	var data expenseCreatedData
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	e := ExpenseCreated{
		ID:         firstNonEmpty(env.ID, data.ExpenseID),
		Group:      firstNonEmpty(data.GroupID, env.GroupID),
		Currency:   data.Currency,
		OccurredAt: env.Timestamp,
	}
	if data.Amount != nil {
		e.Amount = *data.Amount
	}
	if err := requireFields(e.ID, e.Group, data.Amount != nil); err != nil {
		return nil, err
	}
	return e, nil
}

func decodeSummaryUpdated(env envelope) (Event, error) {
	var payload summaryUpdatedPayload
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	e := SummaryUpdated{
		ID:            env.ID,
		Group:         env.GroupID,
		ExpensesCount: payload.ExpensesCount,
		LastExpenseAt: payload.LastExpenseAt,
		Currency:      payload.Currency,
	}
	if payload.TotalAmount != nil {
		e.TotalAmount = *payload.TotalAmount
	}
	if err := requireFields(e.ID, e.Group, payload.TotalAmount != nil); err != nil {
		return nil, err
	}
	return e, nil
}

func requireFields(eventID, groupID string, hasAmount bool) error {
	var missing []string
	if eventID == "" {
		missing = append(missing, "event id")
	}
	if groupID == "" {
		missing = append(missing, "group id")
	}
	if !hasAmount {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func currencyOrDefault(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return models.DefaultCurrency
	}
	return c
}
