package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderAbandoned = "OrderAbandoned"
)

// Event is the envelope published to Kafka
type Event struct {
	EventType  string          `json:"event_type"`
	OrderID    string          `json:"order_id"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent wraps payload in an envelope
func NewEvent(eventType, orderID string, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{EventType: eventType, OrderID: orderID, Data: data, OccurredAt: at}, nil
}

type OrderPlaced struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	UserEmail string          `json:"user_email"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	PlacedAt  time.Time       `json:"placed_at"`
}

type OrderConfirmed struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	UserEmail   string          `json:"user_email"`
	Total       decimal.Decimal `json:"total"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

type OrderAbandoned struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	AbandonedAt time.Time `json:"abandoned_at"`
}
