package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidPath      = errors.New("document path is required")
	ErrNotAnObject      = errors.New("merge requires a JSON object")
	ErrNotACollection   = errors.New("collection path must end with /")
)

// Document is a single JSON document addressed by a slash separated path,
// e.g. "users/u-1/cart/items" or "items/sku-9".
type Document struct {
	Path      string          `json:"path"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the document body into v
func (d *Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Change is delivered to subscribers whenever a watched document is written or deleted.
// Document is nil when Deleted is true.
type Change struct {
	Path     string
	Document *Document
	Deleted  bool
}

// Subscription is a live change feed. Events is closed once the subscription ends.
type Subscription interface {
	Events() <-chan Change
	Close()
}

// DocumentStore is the remote key-document store the cart, catalog and checkout code talk to.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Document, error)
	// Set replaces the document, or shallow-merges top level keys when merge is true
	Set(ctx context.Context, path string, value any, merge bool) error
	Delete(ctx context.Context, path string) error
	// List returns every document below collection (a path ending in "/"), ordered by path
	List(ctx context.Context, collection string) ([]*Document, error)
	// Subscribe watches one document, or every document below a collection
	// when path ends with "/".
	Subscribe(ctx context.Context, path string) (Subscription, error)
}

// Matches reports whether a change at docPath is visible to a subscription on watchPath
func Matches(watchPath, docPath string) bool {
	if strings.HasSuffix(watchPath, "/") {
		return strings.HasPrefix(docPath, watchPath)
	}
	return watchPath == docPath
}

func validateCollection(collection string) error {
	if !strings.HasSuffix(collection, "/") {
		return ErrNotACollection
	}
	return nil
}

// mergeJSON shallow-merges the top level keys of patch into current
func mergeJSON(current, patch json.RawMessage) (json.RawMessage, error) {
	base := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, ErrNotAnObject
		}
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, ErrNotAnObject
	}
	for k, v := range overlay {
		base[k] = v
	}
	return json.Marshal(base)
}
