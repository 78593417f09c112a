package store

import (
	"context"
	"log"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const eventsTable = "events"

// PostgresEventStore stores the change feed in PostgreSQL
type PostgresEventStore struct {
	db        *sqlx.DB
	publisher Publisher
}

type eventRow struct {
	ID            string    `db:"id"`
	AggregateID   string    `db:"aggregate_id"`
	AggregateType string    `db:"aggregate_type"`
	EventType     string    `db:"event_type"`
	Data          []byte    `db:"data"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r eventRow) event() Event {
	return Event{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		Data:          r.Data,
		Timestamp:     r.CreatedAt,
		Version:       r.Version,
	}
}

// NewPostgresEventStore creates the events table if needed.
func NewPostgresEventStore(ctx context.Context, db *sqlx.DB, publisher Publisher) (*PostgresEventStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data JSONB NOT NULL,
		version INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (aggregate_id, version)
	)`)
	if err != nil {
		return nil, unavailable(err)
	}
	return &PostgresEventStore{db: db, publisher: publisher}, nil
}

// Append stores an event and publishes it. The version is derived inside the
// INSERT so two appends for one aggregate cannot share a version.
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	event, err := newEvent(aggregateID, aggregateType, eventType, data, 0)
	if err != nil {
		return nil, err
	}

	builder := goqu.Dialect(dialectPostgres)
	nextVersion := builder.
		From(eventsTable).
		Select(goqu.L("COALESCE(MAX(version), 0) + 1")).
		Where(goqu.C("aggregate_id").Eq(aggregateID))

	query, _, err := builder.
		Insert(eventsTable).
		Cols("id", "aggregate_id", "aggregate_type", "event_type", "data", "version", "created_at").
		Vals(goqu.Vals{event.ID, aggregateID, aggregateType, eventType, string(event.Data), nextVersion, event.Timestamp}).
		Returning("version").
		ToSQL()
	if err != nil {
		return nil, err
	}

	if err := es.db.GetContext(ctx, &event.Version, query); err != nil {
		log.Printf("[PostgresEventStore] append %s for %s failed: %v", eventType, aggregateID, err)
		return nil, unavailable(err)
	}

	if err := publish(ctx, es.publisher, event); err != nil {
		log.Printf("[PostgresEventStore] publish %s for %s failed: %v", eventType, aggregateID, err)
	}
	return &event, nil
}

// GetEvents returns all events for an aggregate in version order
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.selectEvents(ctx, goqu.C("aggregate_id").Eq(aggregateID), "version")
}

// GetAllEvents returns every event in append order
func (es *PostgresEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.selectEvents(ctx, nil, "seq")
}

func (es *PostgresEventStore) selectEvents(ctx context.Context, where goqu.Expression, orderBy string) ([]Event, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(eventsTable).
		Select("id", "aggregate_id", "aggregate_type", "event_type", "data", "version", "created_at").
		Order(goqu.C(orderBy).Asc())
	if where != nil {
		stmt = stmt.Where(where)
	}

	query, _, err := stmt.ToSQL()
	if err != nil {
		return nil, err
	}

	var rows []eventRow
	if err := es.db.SelectContext(ctx, &rows, query); err != nil {
		log.Printf("[PostgresEventStore] select events failed: %v", err)
		return nil, unavailable(err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events, nil
}
