package store

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one entry of the change feed.
type Event struct {
	ID            string              `json:"id"`
	AggregateID   string              `json:"aggregate_id"`
	AggregateType string              `json:"aggregate_type"`
	EventType     string              `json:"event_type"`
	Data          jsoniter.RawMessage `json:"data"`
	Timestamp     time.Time           `json:"timestamp"`
	Version       int                 `json:"version"`
}

// Encode returns the wire form published to Kafka and read by the projector.
func (e Event) Encode() ([]byte, error) {
	return eventJSON.Marshal(e)
}

// DecodeEvent parses the wire form of an event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	err := eventJSON.Unmarshal(data, &e)
	return e, err
}

// Publisher forwards appended events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
}

func newEvent(aggregateID, aggregateType, eventType string, data any, version int) (Event, error) {
	payload, err := eventJSON.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            newEventID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          payload,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}, nil
}

func publish(ctx context.Context, publisher Publisher, event Event) error {
	if publisher == nil {
		return nil
	}
	value, err := event.Encode()
	if err != nil {
		return err
	}
	return publisher.Publish(ctx, event.AggregateID, value)
}
