package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/domain/order"
	"github.com/example/ec-cart-sync/internal/infrastructure/cache"
	"github.com/example/ec-cart-sync/internal/notification"
	"github.com/example/ec-cart-sync/internal/payment"
	"github.com/example/ec-cart-sync/internal/projection"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateIdle            State = "idle"
	StateSnapshotting    State = "snapshotting"
	StateOrderPersisting State = "order_persisting"
	StateAwaitingPayment State = "awaiting_payment"
	StateConfirmed       State = "confirmed"
	StateAbandoned       State = "abandoned"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrNoIdentity        = errors.New("sign in to check out")
	ErrOrderNotVerified  = errors.New("order could not be verified")
	ErrNoPendingOrder    = errors.New("no pending order")
	ErrInvalidTransition = errors.New("invalid checkout transition")
)

const (
	msgSignIn        = "Please sign in to check out"
	msgEmptyCart     = "Your cart is empty"
	msgPaymentFailed = "We could not start the payment. Please try again."
	msgOrderFailed   = "We could not place your order. Please try again."
	msgConfirmed     = "Payment received. Thank you for your order!"
	msgAbandoned     = "Checkout cancelled. Your order is saved for later."
)

// DefaultPendingTTL bounds how long an unfinished checkout can be resumed
const DefaultPendingTTL = 24 * time.Hour

// Projections hands out the live cart view for a user; *projection.Manager satisfies it
type Projections interface {
	Attach(ctx context.Context, id auth.Identity) (*projection.View, error)
}

// Orders persists order records; *order.Service satisfies it
type Orders interface {
	Place(ctx context.Context, id, userID, userEmail string, items []order.Item) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	Transition(ctx context.Context, id string, target order.Status) (*order.Order, error)
}

// Carts clears the live cart; *cart.Service satisfies it
type Carts interface {
	Clear(ctx context.Context, id auth.Identity) error
}

// Gateway opens hosted payment pages; *payment.PayMongoClient satisfies it
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.Request) (*payment.Session, error)
}

// Publisher emits order events; *kafka.Producer satisfies it
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// PendingOrder is the snapshot that carries a checkout attempt across the
// redirect to the payment page and back.
type PendingOrder struct {
	OrderID     string          `json:"orderId"`
	Items       []order.Item    `json:"items"`
	Total       decimal.Decimal `json:"total"`
	CheckoutURL string          `json:"checkoutUrl"`
	State       State           `json:"state"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Handoff tells the caller where to send the user to pay
type Handoff struct {
	OrderID     string          `json:"orderId"`
	CheckoutURL string          `json:"checkoutUrl"`
	Total       decimal.Decimal `json:"total"`
	Resumed     bool            `json:"resumed"`
	State       State           `json:"state"`
}

// Progress describes where a user's checkout currently stands
type Progress struct {
	State       State           `json:"state"`
	OrderID     string          `json:"orderId,omitempty"`
	CheckoutURL string          `json:"checkoutUrl,omitempty"`
	Items       []order.Item    `json:"items,omitempty"`
	Total       decimal.Decimal `json:"total"`
}

type Config struct {
	PendingTTL time.Duration
}

type Service struct {
	projections Projections
	orders      Orders
	carts       Carts
	gateway     Gateway
	pending     cache.Cache
	publisher   Publisher
	notifier    notification.Notifier
	ttl         time.Duration
	now         func() time.Time

	locks sync.Map

	stepsMu sync.Mutex
	// steps holds the in-flight Begin step per user; settled states live in the pending snapshot
	steps   map[string]State
}

// NewService wires the orchestrator. publisher may be nil, in which case no
// events are emitted.
func NewService(
	projections Projections,
	orders Orders,
	carts Carts,
	gateway Gateway,
	pending cache.Cache,
	publisher Publisher,
	notifier notification.Notifier,
	cfg Config,
) *Service {
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Service{
		projections: projections,
		orders:      orders,
		carts:       carts,
		gateway:     gateway,
		pending:     pending,
		publisher:   publisher,
		notifier:    notifier,
		ttl:         ttl,
		now:         time.Now,
		steps:       make(map[string]State),
	}
}

func pendingKey(userID string) string {
	return "pending-order:" + userID
}

// Begin starts or resumes checkout. An unfinished attempt takes precedence
// over the live cart, so refreshing mid-checkout never re-prices the order.
func (s *Service) Begin(ctx context.Context, id auth.Identity) (*Handoff, error) {
	if id.Anonymous() {
		s.notifier.Notify("", notification.LevelWarning, msgSignIn)
		return nil, ErrNoIdentity
	}
	unlock := s.lock(id.UserID)
	defer unlock()

	existing, err := s.loadPending(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.enter(id.UserID, stateOf(existing), StateSnapshotting); err != nil {
		return nil, err
	}
	defer s.settle(id.UserID)

	snap, resumed, err := s.snapshot(ctx, id, existing)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.Request{
		OrderID: snap.OrderID,
		Amount:  snap.Total,
		Items:   lineItems(snap.Items),
	})
	if err != nil {
		log.Printf("[Checkout] Error creating payment session for order %s: %v", snap.OrderID, err)
		s.notifier.Notify(id.UserID, notification.LevelError, msgPaymentFailed)
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	if err := s.enter(id.UserID, StateSnapshotting, StateOrderPersisting); err != nil {
		return nil, err
	}
	var placed *order.Order
	if !resumed {
		if placed, err = s.persist(ctx, id, snap); err != nil {
			s.notifier.Notify(id.UserID, notification.LevelError, msgOrderFailed)
			return nil, err
		}
	}

	snap.CheckoutURL = session.CheckoutURL
	snap.State = StateAwaitingPayment
	if err := s.savePending(ctx, id.UserID, snap); err != nil {
		s.notifier.Notify(id.UserID, notification.LevelError, msgOrderFailed)
		return nil, err
	}
	if err := s.enter(id.UserID, StateOrderPersisting, StateAwaitingPayment); err != nil {
		return nil, err
	}

	if placed != nil {
		s.publish(ctx, order.EventOrderPlaced, placed.ID, order.OrderPlaced{
			OrderID:   placed.ID,
			UserID:    placed.UserID,
			UserEmail: placed.UserEmail,
			Items:     placed.Items,
			Total:     placed.TotalPrice,
			PlacedAt:  placed.Timestamp,
		})
	}

	return &Handoff{
		OrderID:     snap.OrderID,
		CheckoutURL: session.CheckoutURL,
		Total:       snap.Total,
		Resumed:     resumed,
		State:       StateAwaitingPayment,
	}, nil
}

// Confirm records a successful payment: the order moves to processing and
// both the pending snapshot and the live cart are cleared. Confirming an
// already confirmed order only repeats the clean-up.
func (s *Service) Confirm(ctx context.Context, id auth.Identity, orderID string) (*order.Order, error) {
	if id.Anonymous() {
		return nil, ErrNoIdentity
	}
	unlock := s.lock(id.UserID)
	defer unlock()

	o, err := s.ownedOrder(ctx, id, orderID)
	if err != nil {
		return nil, err
	}

	firstConfirm := o.Status == order.StatusPending
	if firstConfirm {
		p, err := s.loadPending(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		from := StateIdle
		if p != nil && p.OrderID == orderID {
			from = stateOf(p)
		}
		if err := s.enter(id.UserID, from, StateConfirmed); err != nil {
			return nil, err
		}
		if o, err = s.orders.Transition(ctx, orderID, order.StatusProcessing); err != nil {
			log.Printf("[Checkout] Error confirming order %s: %v", orderID, err)
			return nil, err
		}
	} else if o.Status != order.StatusProcessing && o.Status != order.StatusCompleted {
		return nil, fmt.Errorf("%w: order %s is %s", order.ErrInvalidStatus, orderID, o.Status)
	}

	if err := s.clearPending(ctx, id.UserID, orderID); err != nil {
		return nil, err
	}
	if err := s.carts.Clear(ctx, id); err != nil {
		log.Printf("[Checkout] Error clearing cart after order %s: %v", orderID, err)
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if firstConfirm {
		s.notifier.Notify(id.UserID, notification.LevelSuccess, msgConfirmed)
		s.publish(ctx, order.EventOrderConfirmed, o.ID, order.OrderConfirmed{
			OrderID:     o.ID,
			UserID:      o.UserID,
			UserEmail:   o.UserEmail,
			Total:       o.TotalPrice,
			ConfirmedAt: o.UpdatedAt,
		})
	}
	return o, nil
}

// Abandon records a cancelled payment. The order stays pending and the
// snapshot is kept so the next Begin resumes it; the live cart is untouched.
func (s *Service) Abandon(ctx context.Context, id auth.Identity, orderID string) error {
	if id.Anonymous() {
		return ErrNoIdentity
	}
	unlock := s.lock(id.UserID)
	defer unlock()

	o, err := s.ownedOrder(ctx, id, orderID)
	if err != nil {
		return err
	}
	if o.Status != order.StatusPending {
		return fmt.Errorf("%w: order %s is %s", order.ErrInvalidStatus, orderID, o.Status)
	}

	p, err := s.loadPending(ctx, id.UserID)
	if err != nil {
		return err
	}
	if p == nil || p.OrderID != orderID {
		return ErrNoPendingOrder
	}
	// a repeated cancel redirect
	if p.State == StateAbandoned {
		return nil
	}
	if err := s.enter(id.UserID, stateOf(p), StateAbandoned); err != nil {
		return err
	}
	p.State = StateAbandoned
	if err := s.savePending(ctx, id.UserID, p); err != nil {
		return err
	}

	s.notifier.Notify(id.UserID, notification.LevelInfo, msgAbandoned)
	s.publish(ctx, order.EventOrderAbandoned, orderID, order.OrderAbandoned{
		OrderID:     orderID,
		UserID:      id.UserID,
		AbandonedAt: s.now().UTC(),
	})
	return nil
}

// Status reports the user's unfinished checkout, or StateIdle when there is none
func (s *Service) Status(ctx context.Context, id auth.Identity) (*Progress, error) {
	if id.Anonymous() {
		return nil, ErrNoIdentity
	}
	step, inFlight := s.step(id.UserID)
	p, err := s.loadPending(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		state := StateIdle
		if inFlight {
			state = step
		}
		return &Progress{State: state, Total: decimal.Zero}, nil
	}
	if !inFlight {
		step = stateOf(p)
	}
	return &Progress{
		State:       step,
		OrderID:     p.OrderID,
		CheckoutURL: p.CheckoutURL,
		Items:       p.Items,
		Total:       p.Total,
	}, nil
}

// snapshot freezes what is about to be bought: the pending snapshot p when
// there is one, otherwise the projected live cart. resumed reports that the
// snapshot's order is already stored and still pending.
func (s *Service) snapshot(ctx context.Context, id auth.Identity, p *PendingOrder) (*PendingOrder, bool, error) {
	if p != nil && len(p.Items) > 0 {
		existing, err := s.orders.Get(ctx, p.OrderID)
		switch {
		case err == nil && existing.UserID == id.UserID && existing.Status == order.StatusPending:
			log.Printf("[Checkout] Resuming order %s for user %s", p.OrderID, id.UserID)
			return p, true, nil
		case err == nil:
			// settled or foreign; buy the same snapshot under a fresh order
			p.OrderID = order.NewID()
		case !errors.Is(err, order.ErrOrderNotFound):
			log.Printf("[Checkout] Error looking up order %s: %v", p.OrderID, err)
			return nil, false, fmt.Errorf("failed to look up order: %w", err)
		}
		log.Printf("[Checkout] Re-placing pending snapshot as order %s for user %s", p.OrderID, id.UserID)
		return p, false, nil
	}

	view, err := s.projections.Attach(ctx, id)
	if err != nil {
		log.Printf("[Checkout] Error loading cart for user %s: %v", id.UserID, err)
		return nil, false, fmt.Errorf("failed to load cart: %w", err)
	}
	items := orderItems(view.Items())
	if len(items) == 0 {
		s.notifier.Notify(id.UserID, notification.LevelWarning, msgEmptyCart)
		return nil, false, ErrEmptyCart
	}
	return &PendingOrder{
		OrderID:   order.NewID(),
		Items:     items,
		Total:     order.TotalPrice(items),
		CreatedAt: s.now().UTC(),
	}, false, nil
}

// persist writes the order as pending and reads it back. A failed read-back
// is fatal even though the write went through.
func (s *Service) persist(ctx context.Context, id auth.Identity, snap *PendingOrder) (*order.Order, error) {
	placed, err := s.orders.Place(ctx, snap.OrderID, id.UserID, id.Email, snap.Items)
	if err != nil {
		log.Printf("[Checkout] Error placing order %s: %v", snap.OrderID, err)
		return nil, err
	}

	stored, err := s.orders.Get(ctx, placed.ID)
	if err != nil {
		log.Printf("[Checkout] Order %s written but read-back failed: %v", placed.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrOrderNotVerified, err)
	}
	if stored.Status != order.StatusPending || !stored.TotalPrice.Equal(placed.TotalPrice) {
		log.Printf("[Checkout] Order %s read back with status=%s total=%s", placed.ID, stored.Status, stored.TotalPrice)
		return nil, ErrOrderNotVerified
	}
	log.Printf("[Checkout] Order %s placed for user %s, total %s", placed.ID, id.UserID, placed.TotalPrice.StringFixed(2))
	return placed, nil
}

func (s *Service) ownedOrder(ctx context.Context, id auth.Identity, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != id.UserID {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) loadPending(ctx context.Context, userID string) (*PendingOrder, error) {
	raw, err := s.pending.Get(ctx, pendingKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		log.Printf("[Checkout] Error reading pending order for user %s: %v", userID, err)
		return nil, fmt.Errorf("failed to read pending order: %w", err)
	}
	var p PendingOrder
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("[Checkout] Discarding malformed pending order for user %s: %v", userID, err)
		return nil, nil
	}
	return &p, nil
}

func (s *Service) savePending(ctx context.Context, userID string, p *PendingOrder) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pending order: %w", err)
	}
	if err := s.pending.Set(ctx, pendingKey(userID), raw, s.ttl); err != nil {
		log.Printf("[Checkout] Error saving pending order for user %s: %v", userID, err)
		return fmt.Errorf("failed to save pending order: %w", err)
	}
	return nil
}

// clearPending drops the snapshot if it belongs to orderID
func (s *Service) clearPending(ctx context.Context, userID, orderID string) error {
	p, err := s.loadPending(ctx, userID)
	if err != nil {
		return err
	}
	if p != nil && p.OrderID != orderID {
		return nil
	}
	if err := s.pending.Delete(ctx, pendingKey(userID)); err != nil {
		log.Printf("[Checkout] Error clearing pending order for user %s: %v", userID, err)
		return fmt.Errorf("failed to clear pending order: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	if s.publisher == nil {
		return
	}
	ev, err := order.NewEvent(eventType, orderID, payload, s.now().UTC())
	if err != nil {
		log.Printf("[Checkout] Error encoding %s for order %s: %v", eventType, orderID, err)
		return
	}
	if err := s.publisher.Publish(ctx, orderID, ev); err != nil {
		log.Printf("[Checkout] Error publishing %s for order %s: %v", eventType, orderID, err)
	}
}

// transitions lists the states each checkout state may move to
var transitions = map[State][]State{
	StateIdle:            {StateSnapshotting, StateConfirmed},
	StateSnapshotting:    {StateOrderPersisting},
	StateOrderPersisting: {StateAwaitingPayment},
	StateAwaitingPayment: {StateSnapshotting, StateConfirmed, StateAbandoned},
	StateAbandoned:       {StateSnapshotting, StateConfirmed},
}

// enter moves the user's checkout from one state to the next. from must match
// the in-flight step when a Begin is running.
func (s *Service) enter(userID string, from, to State) error {
	s.stepsMu.Lock()
	defer s.stepsMu.Unlock()

	if cur, ok := s.steps[userID]; ok && cur != from {
		return fmt.Errorf("%w: checkout is %s, not %s", ErrInvalidTransition, cur, from)
	}
	if !slices.Contains(transitions[from], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch to {
	case StateSnapshotting, StateOrderPersisting:
		s.steps[userID] = to
	default:
		delete(s.steps, userID)
	}
	log.Printf("[Checkout] user=%s %s -> %s", userID, from, to)
	return nil
}

// settle drops a Begin step left behind by a failure; the user falls back to
// whatever the pending snapshot records
func (s *Service) settle(userID string) {
	s.stepsMu.Lock()
	defer s.stepsMu.Unlock()
	if cur, ok := s.steps[userID]; ok {
		delete(s.steps, userID)
		log.Printf("[Checkout] user=%s %s rolled back", userID, cur)
	}
}

func (s *Service) step(userID string) (State, bool) {
	s.stepsMu.Lock()
	defer s.stepsMu.Unlock()
	st, ok := s.steps[userID]
	return st, ok
}

// stateOf reads the settled state recorded by a pending snapshot
func stateOf(p *PendingOrder) State {
	switch {
	case p == nil:
		return StateIdle
	case p.State == "":
		return StateAwaitingPayment
	default:
		return p.State
	}
}

// lock serializes checkout steps per user so a double submit cannot place two orders
func (s *Service) lock(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func orderItems(lines []projection.CartItem) []order.Item {
	items := make([]order.Item, 0, len(lines))
	for _, l := range lines {
		it := order.Item{
			ID:        l.ItemID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Thumbnail: l.Thumbnail,
		}
		if l.VariationPrice != nil {
			vp := *l.VariationPrice
			it.VariationPrice = &vp
		}
		if len(l.SelectedVariations) > 0 {
			it.SelectedVariations = make(map[string]string, len(l.SelectedVariations))
			for k, v := range l.SelectedVariations {
				it.SelectedVariations[k] = v
			}
		}
		items = append(items, it)
	}
	return items
}

func lineItems(items []order.Item) []payment.LineItem {
	out := make([]payment.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, payment.LineItem{
			ID:                 it.ID,
			Name:               it.Name,
			Price:              it.Price,
			VariationPrice:     it.VariationPrice,
			Quantity:           it.Quantity,
			Thumbnail:          it.Thumbnail,
			SelectedVariations: it.SelectedVariations,
		})
	}
	return out
}
