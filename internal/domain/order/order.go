package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CollectionPath is the document collection holding orders
const CollectionPath = "orders/"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrEmptyOrder     = errors.New("order must have at least one item")
	ErrInvalidStatus  = errors.New("invalid order status transition")
	ErrOrderCompleted = errors.New("order is already completed")
	ErrOrderCancelled = errors.New("order is already cancelled")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// Item is a frozen copy of a cart line at checkout time
type Item struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Price              decimal.Decimal   `json:"price"`
	VariationPrice     *decimal.Decimal  `json:"variationPrice,omitempty"`
	Quantity           int               `json:"quantity"`
	Thumbnail          string            `json:"thumbnail"`
	SelectedVariations map[string]string `json:"selectedVariations,omitempty"`
}

func (i Item) UnitPrice() decimal.Decimal {
	if i.VariationPrice != nil {
		return *i.VariationPrice
	}
	return i.Price
}

// TotalPrice sums unit price times quantity over items
func TotalPrice(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	UserEmail  string          `json:"userEmail"`
	Items      []Item          `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     Status          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch o.Status {
	case StatusCancelled:
		return ErrOrderCancelled
	case StatusCompleted:
		return ErrOrderCompleted
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

func OrderPath(id string) string {
	return CollectionPath + id
}

// NewID returns a fresh order id
func NewID() string {
	return uuid.New().String()
}

// Service stores orders as documents under orders/
type Service struct {
	store store.DocumentStore
	now   func() time.Time
}

func NewService(ds store.DocumentStore) *Service {
	return &Service{store: ds, now: time.Now}
}

// Place writes a new pending order. The items are copied, so later changes
// to the caller's slice or to the catalog never reach the stored order.
func (s *Service) Place(ctx context.Context, id, userID, userEmail string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	if id == "" {
		id = NewID()
	}
	now := s.now().UTC()

	o := &Order{
		ID:         id,
		UserID:     userID,
		UserEmail:  userEmail,
		Items:      cloneItems(items),
		TotalPrice: TotalPrice(items),
		Status:     StatusPending,
		Timestamp:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Set(ctx, OrderPath(id), o, false); err != nil {
		log.Printf("[Order] Error writing order %s: %v", id, err)
		return nil, fmt.Errorf("failed to write order: %w", err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	doc, err := s.store.Get(ctx, OrderPath(id))
	if errors.Is(err, store.ErrDocumentNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order %s: %w", id, err)
	}
	var o Order
	if err := doc.Decode(&o); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
	}
	return &o, nil
}

// ListForUser returns the user's orders, newest first
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Order, error) {
	docs, err := s.store.List(ctx, CollectionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := make([]*Order, 0)
	for _, doc := range docs {
		var o Order
		if err := doc.Decode(&o); err != nil {
			log.Printf("[Order] Skipping malformed order %s: %v", doc.Path, err)
			continue
		}
		if o.UserID == userID {
			orders = append(orders, &o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp.After(orders[j].Timestamp) })
	return orders, nil
}

// Transition moves the order to target, writing only the status fields
func (s *Service) Transition(ctx context.Context, id string, target Status) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(target) {
		return nil, o.transitionError(target)
	}

	o.Status = target
	o.UpdatedAt = s.now().UTC()
	patch := map[string]any{"status": o.Status, "updatedAt": o.UpdatedAt}
	if err := s.store.Set(ctx, OrderPath(id), patch, true); err != nil {
		log.Printf("[Order] Error moving order %s to %s: %v", id, target, err)
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return o, nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.VariationPrice != nil {
			vp := *it.VariationPrice
			out[i].VariationPrice = &vp
		}
		if it.SelectedVariations != nil {
			out[i].SelectedVariations = make(map[string]string, len(it.SelectedVariations))
			for k, v := range it.SelectedVariations {
				out[i].SelectedVariations[k] = v
			}
		}
	}
	return out
}
