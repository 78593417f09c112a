package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// AppendCall is one recorded Append, successful or not.
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

// MockEventStore keeps events in memory and records every Append. Setting
// AppendErr makes subsequent appends fail after being recorded.
type MockEventStore struct {
	AppendCalls []AppendCall
	AppendErr   error

	mu       sync.RWMutex
	log      []store.Event
	versions map[string]int
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{versions: make(map[string]int)}
}

func (m *MockEventStore) Append(_ context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{aggregateID, aggregateType, eventType, data})
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(data)
	if err != nil {
		return nil, err
	}

	m.versions[aggregateID]++
	m.log = append(m.log, store.Event{
		ID:            uuid.NewString(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          payload,
		Timestamp:     time.Now().UTC(),
		Version:       m.versions[aggregateID],
	})
	event := m.log[len(m.log)-1]
	return &event, nil
}

func (m *MockEventStore) GetEvents(_ context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Event
	for _, e := range m.log {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockEventStore) GetAllEvents(context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.log...), nil
}

// EventTypes lists the types of every recorded Append in call order.
func (m *MockEventStore) EventTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	types := make([]string, len(m.AppendCalls))
	for i, c := range m.AppendCalls {
		types[i] = c.EventType
	}
	return types
}
