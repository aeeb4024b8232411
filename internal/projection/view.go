package projection

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/example/ec-cart-sync/internal/domain/cart"
	"github.com/example/ec-cart-sync/internal/domain/catalog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// resolveConcurrency bounds parallel catalog reads during one Apply
const resolveConcurrency = 8

// Catalog is the part of the catalog a View needs; *catalog.Resolver satisfies it
type Catalog interface {
	Resolve(ctx context.Context, id string) (*catalog.Item, error)
	Watch(ctx context.Context, id string) (*catalog.Watch, error)
}

// View is one user's materialized cart. It keeps a catalog watch open for
// every distinct item in the cart, so price or name edits show up without
// the reference list changing. Lines whose item cannot be resolved are left out.
type View struct {
	userID  string
	catalog Catalog
	ctx     context.Context
	cancel  context.CancelFunc

	// serializes Apply
	applyMu sync.Mutex
	applied bool

	mu       sync.RWMutex
	refs     []cart.Reference
	resolved map[string]*catalog.Item
	watches  map[string]*catalog.Watch
	closed   bool
}

func NewView(ctx context.Context, userID string, c Catalog) *View {
	vctx, cancel := context.WithCancel(ctx)
	return &View{
		userID:   userID,
		catalog:  c,
		ctx:      vctx,
		cancel:   cancel,
		refs:     []cart.Reference{},
		resolved: make(map[string]*catalog.Item),
		watches:  make(map[string]*catalog.Watch),
	}
}

// Apply replaces the reference list. Items not resolved yet are fetched;
// items already resolved are kept; watches for items that left the cart are closed.
func (v *View) Apply(ctx context.Context, refs []cart.Reference) {
	v.applyMu.Lock()
	defer v.applyMu.Unlock()
	v.apply(ctx, refs)
}

// applyInitial applies refs only if nothing has been applied yet, so a
// snapshot read before a concurrent mutation cannot overwrite it.
func (v *View) applyInitial(ctx context.Context, refs []cart.Reference) {
	v.applyMu.Lock()
	defer v.applyMu.Unlock()
	if v.applied {
		return
	}
	v.apply(ctx, refs)
}

func (v *View) apply(ctx context.Context, refs []cart.Reference) {
	v.applied = true

	wanted := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		wanted[r.ItemID] = struct{}{}
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.refs = refs
	var stale []*catalog.Watch
	for id, w := range v.watches {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, w)
			delete(v.watches, id)
			delete(v.resolved, id)
		}
	}
	var fetch []string
	for id := range wanted {
		if _, ok := v.resolved[id]; !ok {
			fetch = append(fetch, id)
		}
	}
	v.mu.Unlock()

	for _, w := range stale {
		w.Close()
	}

	results := make([]*catalog.Item, len(fetch))
	var g errgroup.Group
	g.SetLimit(resolveConcurrency)
	for i, id := range fetch {
		g.Go(func() error {
			item, err := v.catalog.Resolve(ctx, id)
			switch {
			case errors.Is(err, catalog.ErrItemNotFound):
			case err != nil:
				log.Printf("[Projection] Error resolving item %s for user %s: %v", id, v.userID, err)
			default:
				results[i] = item
			}
			// one failed item never fails the whole projection
			return nil
		})
	}
	_ = g.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	for i, id := range fetch {
		if results[i] == nil {
			continue
		}
		// a watch may already have delivered something newer
		if _, ok := v.resolved[id]; !ok {
			v.resolved[id] = results[i]
		}
	}
	for id := range wanted {
		if _, ok := v.watches[id]; ok {
			continue
		}
		w, err := v.catalog.Watch(v.ctx, id)
		if err != nil {
			log.Printf("[Projection] Error watching item %s for user %s: %v", id, v.userID, err)
			continue
		}
		v.watches[id] = w
		go v.follow(id, w)
	}
}

// follow applies changes from w until it ends. A watch whose feed dropped is
// forgotten so the next Apply watches the item again.
func (v *View) follow(id string, w *catalog.Watch) {
	for change := range w.Changes() {
		v.mu.Lock()
		if v.closed || v.watches[id] != w {
			v.mu.Unlock()
			return
		}
		if change.Deleted {
			delete(v.resolved, id)
		} else {
			v.resolved[id] = change.Item
		}
		v.mu.Unlock()
	}

	v.mu.Lock()
	dropped := !v.closed && v.watches[id] == w
	if dropped {
		delete(v.watches, id)
	}
	v.mu.Unlock()
	if dropped {
		log.Printf("[Projection] Catalog feed for item %s of user %s ended", id, v.userID)
		w.Close()
	}
}

// Items returns the resolved lines in reference order
func (v *View) Items() []CartItem {
	v.mu.RLock()
	defer v.mu.RUnlock()

	items := make([]CartItem, 0, len(v.refs))
	for _, r := range v.refs {
		item, ok := v.resolved[r.ItemID]
		if !ok {
			continue
		}
		items = append(items, join(r, item))
	}
	return items
}

func (v *View) Total() decimal.Decimal {
	return Total(v.Items())
}

func (v *View) Count() int {
	return Count(v.Items())
}

// Watching returns the item ids that currently have a live catalog watch
func (v *View) Watching() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.watches))
	for id := range v.watches {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every catalog watch. Late changes are ignored.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	watches := v.watches
	v.watches = make(map[string]*catalog.Watch)
	v.mu.Unlock()

	for _, w := range watches {
		w.Close()
	}
	v.cancel()
}

func join(r cart.Reference, item *catalog.Item) CartItem {
	var variations map[string][]string
	if len(item.Variations) > 0 {
		variations = make(map[string][]string, len(item.Variations))
		for k, opts := range item.Variations {
			variations[k] = append([]string(nil), opts...)
		}
	}
	var selected cart.Variations
	if len(r.SelectedVariations) > 0 {
		selected = make(cart.Variations, len(r.SelectedVariations))
		for k, val := range r.SelectedVariations {
			selected[k] = val
		}
	}
	return CartItem{
		ItemID:             r.ItemID,
		Quantity:           r.Quantity,
		SelectedVariations: selected,
		Name:               item.Name,
		Price:              item.Price,
		VariationPrice:     item.VariationPrice(r.SelectedVariations),
		Thumbnail:          item.Thumbnail,
		Variations:         variations,
	}
}
