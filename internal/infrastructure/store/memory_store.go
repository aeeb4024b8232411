package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// subscriberBuffer bounds how far a slow subscriber may lag before it is cut off
const subscriberBuffer = 64

// MemoryDocumentStore is an in-process DocumentStore
type MemoryDocumentStore struct {
	mu          sync.RWMutex
	docs        map[string]*Document
	subscribers map[*feed]struct{}
	now         func() time.Time
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:        make(map[string]*Document),
		subscribers: make(map[*feed]struct{}),
		now:         time.Now,
	}
}

// Get returns a copy of the document at path
func (s *MemoryDocumentStore) Get(ctx context.Context, path string) (*Document, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return cloneDocument(doc), nil
}

// Set stores value at path and fans the change out to subscribers
func (s *MemoryDocumentStore) Set(ctx context.Context, path string, value any, merge bool) error {
	if path == "" {
		return ErrInvalidPath
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if merge {
		var current json.RawMessage
		if existing, ok := s.docs[path]; ok {
			current = existing.Data
		}
		if data, err = mergeJSON(current, data); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	doc := &Document{Path: path, Data: data, UpdatedAt: s.now()}
	s.docs[path] = doc
	s.publishLocked(Change{Path: path, Document: cloneDocument(doc)})
	s.mu.Unlock()
	return nil
}

// Delete removes the document at path; deleting a missing document is not an error
func (s *MemoryDocumentStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.publishLocked(Change{Path: path, Deleted: true})
	return nil
}

// List returns copies of the documents under collection
func (s *MemoryDocumentStore) List(ctx context.Context, collection string) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0)
	for path, doc := range s.docs {
		if Matches(collection, path) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Subscribe registers a change feed. The current state of a single watched
// document is delivered first, matching snapshot-listener semantics.
func (s *MemoryDocumentStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	f := newFeed(path)

	s.mu.Lock()
	s.subscribers[f] = struct{}{}
	if doc, ok := s.docs[path]; ok {
		f.offer(Change{Path: path, Document: cloneDocument(doc)})
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		s.mu.Lock()
		delete(s.subscribers, f)
		s.mu.Unlock()
		f.Close()
	}()
	return f, nil
}

func (s *MemoryDocumentStore) publishLocked(change Change) {
	for f := range s.subscribers {
		if Matches(f.path, change.Path) {
			f.offer(change)
		}
	}
}

func cloneDocument(d *Document) *Document {
	data := make(json.RawMessage, len(d.Data))
	copy(data, d.Data)
	return &Document{Path: d.Path, Data: data, UpdatedAt: d.UpdatedAt}
}

// feed is the Subscription handed out by in-process stores and by the
// postgres and mongo watchers.
type feed struct {
	path   string
	events chan Change
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newFeed(path string) *feed {
	return &feed{
		path:   path,
		events: make(chan Change, subscriberBuffer),
		done:   make(chan struct{}),
	}
}

func (f *feed) Events() <-chan Change { return f.events }

// offer never blocks; a subscriber that stops draining loses its feed
func (f *feed) offer(change Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- change:
	default:
		f.closed = true
		close(f.done)
		close(f.events)
	}
}

func (f *feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	close(f.events)
}
