package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/example/ec-cart-sync/internal/notification"
	"github.com/google/uuid"
)

var (
	ErrNoIdentity  = errors.New("sign in to use the cart")
	ErrInvalidItem = errors.New("itemId is required")
	ErrNotInCart   = errors.New("item is not in the cart")
)

const (
	msgSignIn       = "Please sign in to manage your cart"
	msgUnavailable  = "That item is no longer available"
	msgSaveFailed   = "We could not update your cart. Please try again."
	msgLoadFailed   = "We could not load your cart. Please try again."
	msgCartCleared  = "Your cart has been cleared"
	msgItemRemoved  = "Item removed from cart"
	msgItemAdded    = "Added %s to cart"
	msgItemIncrease = "Updated quantity of %s in cart"
)

// ItemResolver looks up catalog items; *catalog.Resolver satisfies it
type ItemResolver interface {
	Resolve(ctx context.Context, id string) (*catalog.Item, error)
}

// Listener receives a user's reference list after every accepted change,
// local or remote. It runs while that user's cart is locked and must not
// call back into the Service for the same user.
type Listener func(userID string, refs []Reference)

// Service owns the per-user reference lists. Every mutation rewrites the
// whole remote document; mutations for one user are serialized.
type Service struct {
	store    store.DocumentStore
	items    ItemResolver
	notifier notification.Notifier
	now      func() time.Time

	mu        sync.Mutex
	carts     map[string]*userCart
	listeners map[int]Listener
	nextID    int
}

type userCart struct {
	mu     sync.Mutex
	loaded bool
	refs   []Reference
	sub    store.Subscription

	// write ids of our own saves whose echo has not come back on sub yet
	inflight []string
}

func NewService(ds store.DocumentStore, items ItemResolver, notifier notification.Notifier) *Service {
	return &Service{
		store:     ds,
		items:     items,
		notifier:  notifier,
		now:       time.Now,
		carts:     make(map[string]*userCart),
		listeners: make(map[int]Listener),
	}
}

// OnChange registers a listener and returns a function that removes it
func (s *Service) OnChange(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Add puts one more unit of the item into the cart. The item must exist in the catalog.
func (s *Service) Add(ctx context.Context, id auth.Identity, itemID string, v Variations) error {
	if err := s.precheck(id, itemID); err != nil {
		return err
	}

	item, err := s.items.Resolve(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			s.notifier.Notify(id.UserID, notification.LevelError, msgUnavailable)
		} else {
			log.Printf("[Cart] Error resolving item %s for user %s: %v", itemID, id.UserID, err)
			s.notifier.Notify(id.UserID, notification.LevelError, msgSaveFailed)
		}
		return err
	}

	existed := false
	err = s.mutate(ctx, id.UserID, func(refs []Reference) ([]Reference, error) {
		existed = indexOf(refs, itemID, v) >= 0
		return addReference(refs, itemID, v), nil
	})
	if err != nil {
		return err
	}

	if existed {
		s.notifier.Notify(id.UserID, notification.LevelSuccess, fmt.Sprintf(msgItemIncrease, item.Name))
	} else {
		s.notifier.Notify(id.UserID, notification.LevelSuccess, fmt.Sprintf(msgItemAdded, item.Name))
	}
	return nil
}

// Remove deletes the line matching (itemID, v). Removing an absent line is a no-op.
func (s *Service) Remove(ctx context.Context, id auth.Identity, itemID string, v Variations) error {
	if err := s.precheck(id, itemID); err != nil {
		return err
	}
	removed := false
	err := s.mutate(ctx, id.UserID, func(refs []Reference) ([]Reference, error) {
		if indexOf(refs, itemID, v) < 0 {
			return nil, nil
		}
		removed = true
		return removeReference(refs, itemID, v), nil
	})
	if err == nil && removed {
		s.notifier.Notify(id.UserID, notification.LevelInfo, msgItemRemoved)
	}
	return err
}

// SetQuantity replaces the quantity of an existing line; quantity <= 0 removes it
func (s *Service) SetQuantity(ctx context.Context, id auth.Identity, itemID string, quantity int, v Variations) error {
	if quantity <= 0 {
		return s.Remove(ctx, id, itemID, v)
	}
	if err := s.precheck(id, itemID); err != nil {
		return err
	}
	return s.mutate(ctx, id.UserID, func(refs []Reference) ([]Reference, error) {
		if indexOf(refs, itemID, v) < 0 {
			return nil, ErrNotInCart
		}
		return setReferenceQuantity(refs, itemID, quantity, v), nil
	})
}

// Clear replaces the reference list with an empty one
func (s *Service) Clear(ctx context.Context, id auth.Identity) error {
	if id.Anonymous() {
		s.notifier.Notify("", notification.LevelWarning, msgSignIn)
		return ErrNoIdentity
	}
	err := s.mutate(ctx, id.UserID, func(refs []Reference) ([]Reference, error) {
		return []Reference{}, nil
	})
	if err == nil {
		s.notifier.Notify(id.UserID, notification.LevelInfo, msgCartCleared)
	}
	return err
}

// References returns a copy of the user's current reference list
func (s *Service) References(ctx context.Context, id auth.Identity) ([]Reference, error) {
	if id.Anonymous() {
		return nil, ErrNoIdentity
	}
	uc := s.cartFor(id.UserID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := s.ensureLoaded(ctx, id.UserID, uc); err != nil {
		s.notifier.Notify(id.UserID, notification.LevelError, msgLoadFailed)
		return nil, err
	}
	return cloneReferences(uc.refs), nil
}

// SubscribeToRemoteChanges keeps the local mirror in step with writes made
// elsewhere (other devices or tabs). Installing twice is a no-op. The feed
// ends when ctx is done or Unsubscribe is called.
func (s *Service) SubscribeToRemoteChanges(ctx context.Context, id auth.Identity) error {
	if id.Anonymous() {
		return ErrNoIdentity
	}
	uc := s.cartFor(id.UserID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.sub != nil {
		return nil
	}
	sub, err := s.store.Subscribe(ctx, DocumentPath(id.UserID))
	if err != nil {
		log.Printf("[Cart] Error subscribing to cart of user %s: %v", id.UserID, err)
		return fmt.Errorf("failed to subscribe to cart: %w", err)
	}
	uc.sub = sub
	uc.inflight = nil
	go s.follow(id.UserID, uc, sub)
	return nil
}

// Unsubscribe tears down the remote feed and forgets the local mirror, so a
// later access starts again from the remote document. The user's entry is
// kept so mutations already waiting on its lock stay serialized.
func (s *Service) Unsubscribe(userID string) {
	s.mu.Lock()
	uc, ok := s.carts[userID]
	s.mu.Unlock()
	if !ok {
		return
	}

	uc.mu.Lock()
	sub := uc.sub
	uc.sub = nil
	uc.inflight = nil
	uc.loaded = false
	uc.refs = nil
	uc.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Subscribed reports whether a remote feed is installed for the user
func (s *Service) Subscribed(userID string) bool {
	s.mu.Lock()
	uc, ok := s.carts[userID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.sub != nil
}

func (s *Service) follow(userID string, uc *userCart, sub store.Subscription) {
	for ev := range sub.Events() {
		s.applyRemote(userID, uc, sub, ev)
	}

	uc.mu.Lock()
	if uc.sub == sub {
		uc.sub = nil
		uc.inflight = nil
	}
	uc.mu.Unlock()
}

func (s *Service) applyRemote(userID string, uc *userCart, sub store.Subscription, ev store.Change) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	// late events from a feed that was replaced or torn down
	if uc.sub != sub {
		return
	}

	var doc Document
	if !ev.Deleted {
		if err := ev.Document.Decode(&doc); err != nil {
			log.Printf("[Cart] Ignoring malformed cart document for user %s: %v", userID, err)
			return
		}
	}

	// The feed delivers writes in store order. While one of our saves is
	// still in flight, anything ahead of its echo was already overwritten by it.
	if len(uc.inflight) > 0 {
		if i := slices.Index(uc.inflight, doc.WriteID); !ev.Deleted && i >= 0 {
			uc.inflight = uc.inflight[i+1:]
		}
		return
	}

	uc.refs = normalize(doc.Items)
	uc.loaded = true
	s.notify(userID, uc.refs)
}

func (s *Service) precheck(id auth.Identity, itemID string) error {
	if id.Anonymous() {
		s.notifier.Notify("", notification.LevelWarning, msgSignIn)
		return ErrNoIdentity
	}
	if itemID == "" {
		return ErrInvalidItem
	}
	return nil
}

// mutate runs fn against the current list under the user's lock and writes
// the result back as a whole document. fn returning a nil slice means no change.
func (s *Service) mutate(ctx context.Context, userID string, fn func([]Reference) ([]Reference, error)) error {
	uc := s.cartFor(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	// without a live feed the mirror may be stale, so start from the remote copy
	if uc.sub == nil {
		uc.loaded = false
	}
	if err := s.ensureLoaded(ctx, userID, uc); err != nil {
		s.notifier.Notify(userID, notification.LevelError, msgLoadFailed)
		return err
	}

	next, err := fn(uc.refs)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	doc := Document{Items: next, LastUpdated: s.now().UTC(), WriteID: uuid.NewString()}
	if err := s.store.Set(ctx, DocumentPath(userID), doc, false); err != nil {
		log.Printf("[Cart] Error saving cart for user %s: %v", userID, err)
		s.notifier.Notify(userID, notification.LevelError, msgSaveFailed)
		return fmt.Errorf("failed to save cart: %w", err)
	}

	uc.refs = next
	if uc.sub != nil {
		uc.inflight = append(uc.inflight, doc.WriteID)
	}
	s.notify(userID, uc.refs)
	return nil
}

func (s *Service) ensureLoaded(ctx context.Context, userID string, uc *userCart) error {
	if uc.loaded {
		return nil
	}
	d, err := s.store.Get(ctx, DocumentPath(userID))
	if errors.Is(err, store.ErrDocumentNotFound) {
		uc.refs = []Reference{}
		uc.loaded = true
		return nil
	}
	if err != nil {
		log.Printf("[Cart] Error loading cart for user %s: %v", userID, err)
		return fmt.Errorf("failed to load cart: %w", err)
	}

	var doc Document
	if err := d.Decode(&doc); err != nil {
		log.Printf("[Cart] Malformed cart document for user %s, starting empty: %v", userID, err)
	}
	uc.refs = normalize(doc.Items)
	uc.loaded = true
	return nil
}

func (s *Service) cartFor(userID string) *userCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	uc, ok := s.carts[userID]
	if !ok {
		uc = &userCart{}
		s.carts[userID] = uc
	}
	return uc
}

func (s *Service) notify(userID string, refs []Reference) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(userID, cloneReferences(refs))
	}
}
