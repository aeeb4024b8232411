package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/example/ec-cart-sync/internal/infrastructure/store"
)

// MockDocumentStore wraps the in-memory store and records calls for assertions
type MockDocumentStore struct {
	inner *store.MemoryDocumentStore

	mu sync.Mutex

	// For tracking calls in tests
	GetCalls       []string
	SetCalls       []SetCall
	DeleteCalls    []string
	ListCalls      []string
	SubscribeCalls []string

	// Errors returned instead of touching the inner store. The *ForPrefix
	// variants only apply to paths starting with the map key.
	GetErr          error
	SetErr          error
	DeleteErr       error
	ListErr         error
	SubscribeErr    error
	GetErrForPrefix map[string]error
	SetErrForPrefix map[string]error
}

// SetCall records parameters passed to Set
type SetCall struct {
	Path  string
	Value any
	Merge bool
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		inner:           store.NewMemoryDocumentStore(),
		GetErrForPrefix: make(map[string]error),
		SetErrForPrefix: make(map[string]error),
	}
}

func (m *MockDocumentStore) Get(ctx context.Context, path string) (*store.Document, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, path)
	err := pick(m.GetErr, m.GetErrForPrefix, path)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, path)
}

func (m *MockDocumentStore) Set(ctx context.Context, path string, value any, merge bool) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Path: path, Value: value, Merge: merge})
	err := pick(m.SetErr, m.SetErrForPrefix, path)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.inner.Set(ctx, path, value, merge)
}

func (m *MockDocumentStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, path)
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.inner.Delete(ctx, path)
}

func (m *MockDocumentStore) List(ctx context.Context, collection string) ([]*store.Document, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, collection)
	err := m.ListErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.List(ctx, collection)
}

func (m *MockDocumentStore) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	m.mu.Lock()
	m.SubscribeCalls = append(m.SubscribeCalls, path)
	err := m.SubscribeErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.Subscribe(ctx, path)
}

// SetData writes directly to the inner store without recording the call
func (m *MockDocumentStore) SetData(path string, value any) error {
	return m.inner.Set(context.Background(), path, value, false)
}

// DeleteData deletes directly from the inner store without recording the call
func (m *MockDocumentStore) DeleteData(path string) error {
	return m.inner.Delete(context.Background(), path)
}

// GetData reads directly from the inner store without recording the call
func (m *MockDocumentStore) GetData(path string) (*store.Document, error) {
	return m.inner.Get(context.Background(), path)
}

// FailGets makes Get fail with err for paths starting with prefix
func (m *MockDocumentStore) FailGets(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetErrForPrefix[prefix] = err
}

// FailSets makes Set fail with err for paths starting with prefix
func (m *MockDocumentStore) FailSets(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetErrForPrefix[prefix] = err
}

// SetCallsFor returns recorded Set calls whose path starts with prefix
func (m *MockDocumentStore) SetCallsFor(prefix string) []SetCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []SetCall
	for _, c := range m.SetCalls {
		if strings.HasPrefix(c.Path, prefix) {
			calls = append(calls, c)
		}
	}
	return calls
}

// SubscribeCallsFor returns recorded Subscribe paths starting with prefix
func (m *MockDocumentStore) SubscribeCallsFor(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []string
	for _, p := range m.SubscribeCalls {
		if strings.HasPrefix(p, prefix) {
			calls = append(calls, p)
		}
	}
	return calls
}

// Reset clears recorded calls and injected errors
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = nil
	m.SetCalls = nil
	m.DeleteCalls = nil
	m.ListCalls = nil
	m.SubscribeCalls = nil
	m.GetErr = nil
	m.SetErr = nil
	m.DeleteErr = nil
	m.ListErr = nil
	m.SubscribeErr = nil
	m.GetErrForPrefix = make(map[string]error)
	m.SetErrForPrefix = make(map[string]error)
}

func pick(err error, byPrefix map[string]error, path string) error {
	if err != nil {
		return err
	}
	for prefix, e := range byPrefix {
		if strings.HasPrefix(path, prefix) {
			return e
		}
	}
	return nil
}
