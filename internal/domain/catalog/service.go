package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Service is the admin side of the catalog: create, replace, delete and list items
type Service struct {
	store    store.DocumentStore
	resolver *Resolver
}

func NewService(ds store.DocumentStore, resolver *Resolver) *Service {
	return &Service{store: ds, resolver: resolver}
}

// Put creates or replaces an item. An empty ID gets a generated one.
func (s *Service) Put(ctx context.Context, item *Item) (*Item, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	if err := s.store.Set(ctx, ItemPath(item.ID), item, false); err != nil {
		log.Printf("[Catalog] Error saving item %s: %v", item.ID, err)
		return nil, fmt.Errorf("failed to save item: %w", err)
	}
	s.resolver.Invalidate(ctx, item.ID)
	return item, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.resolver.Resolve(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, ItemPath(id)); err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("failed to load item: %w", err)
	}
	if err := s.store.Delete(ctx, ItemPath(id)); err != nil {
		log.Printf("[Catalog] Error deleting item %s: %v", id, err)
		return fmt.Errorf("failed to delete item: %w", err)
	}
	s.resolver.Invalidate(ctx, id)
	return nil
}

// List returns every item, optionally restricted to one category
func (s *Service) List(ctx context.Context, category string) ([]*Item, error) {
	docs, err := s.store.List(ctx, CollectionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]*Item, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeItem(doc.Path[len(CollectionPath):], doc.Data)
		if err != nil {
			log.Printf("[Catalog] Skipping %v", err)
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
