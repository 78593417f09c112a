package mocks

import (
	"context"
	"sync"

	"github.com/example/bookshop/internal/infrastructure/store"
)

// MockDocumentStore wraps a MemoryStore, records calls and can be told to
// fail, e.g. to simulate an unreachable database.
type MockDocumentStore struct {
	inner *store.MemoryStore

	mu          sync.Mutex
	FailWith    error
	InsertCalls []WriteCall
	UpdateCalls []WriteCall
	UpsertCalls []WriteCall
	DeleteCalls []WriteCall
}

// WriteCall records the target of a write
type WriteCall struct {
	Collection string
	ID         string
}

// NewMockDocumentStore creates a mock enforcing the default unique indexes
func NewMockDocumentStore() *MockDocumentStore {
	inner, err := store.NewMemoryStore(store.WithUniqueIndexes(store.DefaultIndexes...))
	if err != nil {
		panic(err)
	}
	return &MockDocumentStore{inner: inner}
}

func (m *MockDocumentStore) fail() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FailWith
}

func (m *MockDocumentStore) record(calls *[]WriteCall, collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, WriteCall{Collection: collection, ID: id})
}

// SetFailure makes every following call return err
func (m *MockDocumentStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWith = err
}

func (m *MockDocumentStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, collection, id)
}

func (m *MockDocumentStore) Find(ctx context.Context, collection string, q store.Query) ([][]byte, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	return m.inner.Find(ctx, collection, q)
}

func (m *MockDocumentStore) Insert(ctx context.Context, collection, id string, doc []byte) error {
	m.record(&m.InsertCalls, collection, id)
	if err := m.fail(); err != nil {
		return err
	}
	return m.inner.Insert(ctx, collection, id, doc)
}

func (m *MockDocumentStore) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	m.record(&m.UpsertCalls, collection, id)
	if err := m.fail(); err != nil {
		return err
	}
	return m.inner.Upsert(ctx, collection, id, doc)
}

func (m *MockDocumentStore) Update(ctx context.Context, collection, id string, fn func([]byte) ([]byte, error)) error {
	m.record(&m.UpdateCalls, collection, id)
	if err := m.fail(); err != nil {
		return err
	}
	return m.inner.Update(ctx, collection, id, fn)
}

func (m *MockDocumentStore) Delete(ctx context.Context, collection, id string) error {
	m.record(&m.DeleteCalls, collection, id)
	if err := m.fail(); err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}
