package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/ec-cart-sync/internal/domain/order"
	"github.com/example/ec-cart-sync/internal/email"
	"github.com/shopspring/decimal"
)

// Mailer sends order mail; *email.Service satisfies it
type Mailer interface {
	SendOrderReceived(to, orderID string, total decimal.Decimal, items []email.OrderItem) error
	SendPaymentConfirmed(to, orderID string, total decimal.Decimal) error
}

// Handler turns order events from Kafka into customer mail
type Handler struct {
	mailer Mailer
}

func NewHandler(mailer Mailer) *Handler {
	return &Handler{mailer: mailer}
}

// HandleEvent processes one Kafka message. Malformed messages are logged
// and skipped so they do not block the partition.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event order.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Skipping malformed event: %v", err)
		return nil
	}

	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(event)
	case order.EventOrderConfirmed:
		return h.handleOrderConfirmed(event)
	default:
		return nil
	}
}

func (h *Handler) handleOrderPlaced(event order.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Skipping malformed OrderPlaced event: %v", err)
		return nil
	}
	if e.UserEmail == "" {
		log.Printf("[Notifier] Order %s has no email address, skipping", e.OrderID)
		return nil
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderID, e.UserID)

	items := make([]email.OrderItem, len(e.Items))
	for i, it := range e.Items {
		items[i] = email.OrderItem{
			Name:               it.Name,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice(),
			SelectedVariations: it.SelectedVariations,
		}
	}

	if err := h.mailer.SendOrderReceived(e.UserEmail, e.OrderID, e.Total, items); err != nil {
		log.Printf("[Notifier] Failed to send order mail to %s: %v", e.UserEmail, err)
		return err
	}
	log.Printf("[Notifier] Order mail sent to %s for order %s", e.UserEmail, e.OrderID)
	return nil
}

func (h *Handler) handleOrderConfirmed(event order.Event) error {
	var e order.OrderConfirmed
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Skipping malformed OrderConfirmed event: %v", err)
		return nil
	}
	if e.UserEmail == "" {
		return nil
	}

	if err := h.mailer.SendPaymentConfirmed(e.UserEmail, e.OrderID, e.Total); err != nil {
		log.Printf("[Notifier] Failed to send receipt to %s: %v", e.UserEmail, err)
		return err
	}
	log.Printf("[Notifier] Receipt sent to %s for order %s", e.UserEmail, e.OrderID)
	return nil
}
