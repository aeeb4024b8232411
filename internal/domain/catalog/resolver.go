package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/ec-cart-sync/internal/infrastructure/cache"
	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "catalog:item:"

// Resolver reads catalog items through a TTL cache. Concurrent resolves of
// the same id share a single store read.
type Resolver struct {
	store store.DocumentStore
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewResolver(ds store.DocumentStore, c cache.Cache, ttl time.Duration) *Resolver {
	return &Resolver{store: ds, cache: c, ttl: ttl}
}

// Resolve returns the item with the given id or ErrItemNotFound
func (r *Resolver) Resolve(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, ErrItemNotFound
	}

	if data, err := r.cache.Get(ctx, cacheKeyPrefix+id); err == nil {
		if item, err := decodeItem(id, data); err == nil {
			return item, nil
		}
		log.Printf("[Catalog] Discarding undecodable cache entry for %s", id)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("[Catalog] Cache read failed for %s: %v", id, err)
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		doc, err := r.store.Get(ctx, ItemPath(id))
		if errors.Is(err, store.ErrDocumentNotFound) {
			return nil, ErrItemNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load item %s: %w", id, err)
		}
		if err := r.cache.Set(ctx, cacheKeyPrefix+id, doc.Data, r.ttl); err != nil {
			log.Printf("[Catalog] Cache write failed for %s: %v", id, err)
		}
		return []byte(doc.Data), nil
	})
	if err != nil {
		return nil, err
	}
	// each caller decodes its own copy so callers never share maps
	return decodeItem(id, v.([]byte))
}

// Invalidate drops the cached copy of an item
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, cacheKeyPrefix+id); err != nil {
		log.Printf("[Catalog] Cache invalidate failed for %s: %v", id, err)
	}
}

func decodeItem(id string, data []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	item.ID = id
	return &item, nil
}

// ItemChange is delivered by a Watch. Item is nil when Deleted is true.
type ItemChange struct {
	ItemID  string
	Item    *Item
	Deleted bool
}

// Watch is a live feed of changes to one catalog item
type Watch struct {
	itemID  string
	sub     store.Subscription
	changes chan ItemChange
	done    chan struct{}
	once    sync.Once
}

// Watch subscribes to an item. The item's current state, if any, is delivered first.
func (r *Resolver) Watch(ctx context.Context, id string) (*Watch, error) {
	sub, err := r.store.Subscribe(ctx, ItemPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to watch item %s: %w", id, err)
	}
	w := &Watch{
		itemID:  id,
		sub:     sub,
		changes: make(chan ItemChange),
		done:    make(chan struct{}),
	}
	go w.run(r)
	return w, nil
}

func (w *Watch) run(r *Resolver) {
	defer close(w.changes)
	for ev := range w.sub.Events() {
		r.Invalidate(context.Background(), w.itemID)

		change := ItemChange{ItemID: w.itemID, Deleted: ev.Deleted}
		if !ev.Deleted {
			item, err := decodeItem(w.itemID, ev.Document.Data)
			if err != nil {
				log.Printf("[Catalog] %v", err)
				continue
			}
			change.Item = item
		}

		select {
		case w.changes <- change:
		case <-w.done:
			return
		}
	}
}

// Changes is closed once the watch ends
func (w *Watch) Changes() <-chan ItemChange { return w.changes }

func (w *Watch) Close() {
	w.once.Do(func() {
		close(w.done)
		w.sub.Close()
	})
}
