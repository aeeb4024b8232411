package projection

import (
	"context"
	"sync"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/example/ec-cart-sync/internal/domain/cart"
)

// Manager keeps one View per signed-in user, fed by the cart service's
// local mutations and its remote change feed.
type Manager struct {
	carts   *cart.Service
	catalog Catalog
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	views  map[string]*View
	detach func()
}

func NewManager(carts *cart.Service, c Catalog) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		carts:   carts,
		catalog: c,
		ctx:     ctx,
		cancel:  cancel,
		views:   make(map[string]*View),
	}
	m.detach = carts.OnChange(m.onCartChange)
	return m
}

func (m *Manager) onCartChange(userID string, refs []cart.Reference) {
	m.mu.Lock()
	v, ok := m.views[userID]
	m.mu.Unlock()
	if ok {
		v.Apply(m.ctx, refs)
	}
}

// Attach returns the user's view, creating it and installing the remote cart
// feed on first use. Attaching an attached user is a no-op.
func (m *Manager) Attach(ctx context.Context, id auth.Identity) (*View, error) {
	if id.Anonymous() {
		return nil, cart.ErrNoIdentity
	}

	m.mu.Lock()
	if v, ok := m.views[id.UserID]; ok {
		m.mu.Unlock()
		return v, nil
	}
	v := NewView(m.ctx, id.UserID, m.catalog)
	m.views[id.UserID] = v
	m.mu.Unlock()

	refs, err := m.carts.References(ctx, id)
	if err != nil {
		m.Detach(id.UserID)
		return nil, err
	}
	v.applyInitial(ctx, refs)

	// the feed outlives the request that attached it
	if err := m.carts.SubscribeToRemoteChanges(m.ctx, id); err != nil {
		m.Detach(id.UserID)
		return nil, err
	}
	return v, nil
}

// View returns the user's view if attached
func (m *Manager) View(userID string) (*View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[userID]
	return v, ok
}

// Detach closes the user's view and remote feed, e.g. on sign-out
func (m *Manager) Detach(userID string) {
	m.mu.Lock()
	v, ok := m.views[userID]
	delete(m.views, userID)
	m.mu.Unlock()

	if ok {
		v.Close()
	}
	m.carts.Unsubscribe(userID)
}

// Close detaches every user and stops listening to the cart service
func (m *Manager) Close() {
	m.detach()

	m.mu.Lock()
	users := make([]string, 0, len(m.views))
	for id := range m.views {
		users = append(users, id)
	}
	m.mu.Unlock()

	for _, id := range users {
		m.Detach(id)
	}
	m.cancel()
}
