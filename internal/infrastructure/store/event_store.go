package store

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

func newEventID() string {
	return uuid.New().String()
}

// EventStore keeps the change feed in memory and forwards it to a publisher.
type EventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	order     []Event
	publisher Publisher
}

// NewEventStore creates an in-memory event store. publisher may be nil.
func NewEventStore(publisher Publisher) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		publisher: publisher,
	}
}

// Append records an event and publishes it. A publish failure is logged; the
// event stays recorded.
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	es.mu.Lock()
	event, err := newEvent(aggregateID, aggregateType, eventType, data, len(es.events[aggregateID])+1)
	if err != nil {
		es.mu.Unlock()
		return nil, err
	}
	es.events[aggregateID] = append(es.events[aggregateID], event)
	es.order = append(es.order, event)
	es.mu.Unlock()

	if err := publish(ctx, es.publisher, event); err != nil {
		log.Printf("[EventStore] publish %s for %s failed: %v", eventType, aggregateID, err)
	}
	return &event, nil
}

// GetEvents returns the events of one aggregate in version order.
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.events[aggregateID]...), nil
}

// GetAllEvents returns every event in append order.
func (es *EventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return append([]Event(nil), es.order...), nil
}
