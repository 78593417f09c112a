package notification

import (
	"context"
	"errors"
	"log"

	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/example/bookshop/internal/projection"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sender delivers checkout receipts.
type Sender interface {
	SendReceipt(to, name string, e cart.CheckedOut) error
}

// Handler processes events for sending notifications
type Handler struct {
	sender Sender
	docs   store.DocumentStore
}

// NewHandler creates a notification handler. Recipients are looked up in
// docs: the projected profiles first, then the user records.
func NewHandler(sender Sender, docs store.DocumentStore) *Handler {
	return &Handler{
		sender: sender,
		docs:   docs,
	}
}

// HandleEvent processes an event from the change feed
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	event, err := store.DecodeEvent(value)
	if err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only checkouts are mailed
	if event.EventType == cart.EventCheckedOut {
		return h.handleCheckedOut(ctx, event)
	}
	return nil
}

func (h *Handler) handleCheckedOut(ctx context.Context, event store.Event) error {
	var e cart.CheckedOut
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal %s event: %v", cart.EventCheckedOut, err)
		return err
	}

	log.Printf("[Notifier] Processing %s checkout %s for user %s", e.Variant, e.CartID, e.UserID)

	profile, err := h.recipient(ctx, e.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[Notifier] User not found: %s", e.UserID)
		return nil
	}
	if err != nil {
		return err
	}
	if profile.Email == "" {
		log.Printf("[Notifier] No email address for user %s", e.UserID)
		return nil
	}

	if err := h.sender.SendReceipt(profile.Email, profile.FullName, e); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", profile.Email, err)
		return err
	}

	log.Printf("[Notifier] Receipt sent to %s for %s", profile.Email, e.CartID)
	return nil
}

func (h *Handler) recipient(ctx context.Context, userID string) (*user.Profile, error) {
	doc, err := h.docs.Get(ctx, projection.ProfileCollection, userID)
	if errors.Is(err, store.ErrNotFound) {
		doc, err = h.docs.Get(ctx, user.Collection, userID)
	}
	if err != nil {
		return nil, err
	}

	var profile user.Profile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
