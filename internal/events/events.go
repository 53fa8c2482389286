// Package events publishes expense change notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/hisaab/internal/models"
)

type Type string

const (
	ExpenseCreated Type = "expense.created"
	ExpenseUpdated Type = "expense.updated"
	ExpenseDeleted Type = "expense.deleted"
)

// Event describes one expense write. Consumers re-read the expense if they
// need more than the amount.
type Event struct {
	Type      Type            `json:"type"`
	ExpenseID string          `json:"expenseId"`
	GroupID   string          `json:"groupId"`
	ActorID   string          `json:"actorId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewExpenseEvent builds an event for expense, written by actorID.
func NewExpenseEvent(eventType Type, expense *models.Expense, actorID string) *Event {
	return &Event{
		Type:      eventType,
		ExpenseID: expense.ID,
		GroupID:   expense.GroupID,
		ActorID:   actorID,
		Amount:    expense.Amount,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event published by ToJSON.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher delivers expense events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }
