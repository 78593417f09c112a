package projection

import (
	"context"
	"fmt"
	"log"

	"github.com/example/bookshop/internal/catalog"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/store"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProfileCollection holds the public profiles mirrored from user events.
// Credentials never leave the authoritative users collection.
const ProfileCollection = "profiles"

// Projector mirrors the change feed into a document store. Applying the
// same event twice leaves the same result.
type Projector struct {
	docs  store.DocumentStore
	books *catalog.Repository
}

func NewProjector(docs store.DocumentStore) *Projector {
	return &Projector{docs: docs, books: catalog.NewRepository(docs)}
}

// HandleEvent applies one encoded event. It matches kafka.MessageHandler.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	event, err := store.DecodeEvent(value)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Apply(ctx, event)
}

// Apply projects a decoded event.
func (p *Projector) Apply(ctx context.Context, event store.Event) error {
	log.Printf("[Projector] Received event: %s (aggregate: %s)", event.EventType, event.AggregateType)

	switch event.AggregateType {
	case book.AggregateType:
		return p.handleBookEvent(ctx, event)
	case user.AggregateType:
		return p.handleUserEvent(ctx, event)
	case cart.AggregateType:
		// Checkouts change books, which arrive as their own events.
		return nil
	}

	log.Printf("[Projector] skipping unknown aggregate type %q", event.AggregateType)
	return nil
}

func (p *Projector) handleBookEvent(ctx context.Context, event store.Event) error {
	if event.EventType == book.EventBookDeleted {
		var e book.BookDeleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		if _, err := p.books.Delete(ctx, e.BookID); err != nil {
			return err
		}
		return nil
	}

	var snap book.Snapshot
	if err := json.Unmarshal(event.Data, &snap); err != nil {
		return err
	}
	if snap.Book == nil || snap.Book.ID == "" {
		log.Printf("[Projector] %s for %s carries no book, skipping", event.EventType, event.AggregateID)
		return nil
	}
	return p.books.Upsert(ctx, snap.Book)
}

func (p *Projector) handleUserEvent(ctx context.Context, event store.Event) error {
	if event.EventType == user.EventUserPasswordChanged {
		return nil
	}

	var snap user.Snapshot
	if err := json.Unmarshal(event.Data, &snap); err != nil {
		return err
	}
	if snap.Profile == nil || snap.Profile.ID == "" {
		log.Printf("[Projector] %s for %s carries no profile, skipping", event.EventType, event.AggregateID)
		return nil
	}
	doc, err := json.Marshal(snap.Profile)
	if err != nil {
		return err
	}
	return p.docs.Upsert(ctx, ProfileCollection, snap.Profile.ID, doc)
}

// Replay applies every event of es in order and returns how many were
// applied. Events that fail are logged and skipped.
func (p *Projector) Replay(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, event := range events {
		if err := p.Apply(ctx, event); err != nil {
			log.Printf("[Projector] replay of event %s failed: %v", event.ID, err)
			continue
		}
		applied++
	}
	log.Printf("[Projector] replayed %d of %d events", applied, len(events))
	return applied, nil
}

// Profile returns a mirrored profile.
func (p *Projector) Profile(ctx context.Context, userID string) (*user.Profile, error) {
	doc, err := p.docs.Get(ctx, ProfileCollection, userID)
	if err != nil {
		return nil, err
	}
	var profile user.Profile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
