package config

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/bookshop/internal/infrastructure/kafka"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/jmoiron/sqlx"
)

// Backends holds the stores selected by the configuration.
type Backends struct {
	Documents store.DocumentStore
	Events    store.EventStoreInterface
	// Producer is nil when the change feed is disabled.
	Producer *kafka.Producer

	closers []func() error
}

// Close releases every opened resource in reverse order.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Open connects the document store, the event store and the optional Kafka
// producer. On failure everything opened so far is closed.
func (c *Config) Open(ctx context.Context) (*Backends, error) {
	b := &Backends{}
	if err := c.open(ctx, b); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (c *Config) open(ctx context.Context, b *Backends) error {
	var pg *sqlx.DB
	postgres := func() (*sqlx.DB, error) {
		if pg != nil {
			return pg, nil
		}
		db, err := store.ConnectPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		pg = db
		return db, nil
	}

	var publisher store.Publisher
	if c.FeedEnabled() {
		b.Producer = kafka.NewProducer(c.KafkaBrokers, c.KafkaTopic)
		b.closers = append(b.closers, b.Producer.Close)
		publisher = b.Producer
	}

	indexes := store.WithUniqueIndexes(store.DefaultIndexes...)
	switch c.CatalogBackend {
	case BackendMemory:
		docs, err := store.NewMemoryStore(indexes)
		if err != nil {
			return err
		}
		b.Documents = docs
	case BackendSQLite:
		docs, err := store.OpenSQLite(ctx, c.SQLitePath, indexes)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, docs.Close)
		b.Documents = docs
	case BackendPostgres:
		db, err := postgres()
		if err != nil {
			return err
		}
		docs, err := store.NewPostgresStore(ctx, db, indexes)
		if err != nil {
			return err
		}
		b.Documents = docs
	case BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, c.AWSRegion, c.DynamoEndpoint)
		if err != nil {
			return fmt.Errorf("dynamodb client: %w", err)
		}
		docs, err := store.NewDynamoStore(client, indexes, store.WithTableName(c.DynamoTable))
		if err != nil {
			return err
		}
		b.Documents = docs
	}

	switch c.EventBackend {
	case BackendMemory:
		b.Events = store.NewEventStore(publisher)
	case BackendPostgres:
		db, err := postgres()
		if err != nil {
			return err
		}
		events, err := store.NewPostgresEventStore(ctx, db, publisher)
		if err != nil {
			return err
		}
		b.Events = events
	case BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, c.AWSRegion, c.DynamoEndpoint)
		if err != nil {
			return fmt.Errorf("dynamodb client: %w", err)
		}
		b.Events = store.NewDynamoEventStore(client, c.DynamoEvents, publisher)
	}

	log.Printf("[Config] catalog=%s events=%s feed=%v", c.CatalogBackend, c.EventBackend, c.FeedEnabled())
	return nil
}
