package command

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/store"
)

var (
	ErrNotSeller  = fmt.Errorf("%w: only the seller may change this listing", domain.ErrInvalidArgument)
	ErrBookInCart = fmt.Errorf("%w: book is in a cart", domain.ErrConflict)
	ErrOwnBook    = fmt.Errorf("%w: sellers cannot buy or borrow their own books", domain.ErrConflict)
)

// Receipt summarizes a checkout. No payment is taken.
type Receipt struct {
	CartID       string       `json:"cart_id"`
	Variant      cart.Variant `json:"variant"`
	Items        []cart.Item  `json:"items"`
	Totals       cart.Totals  `json:"totals"`
	CheckedOutAt time.Time    `json:"checked_out_at"`
}

type Handler struct {
	bookSvc    *book.Service
	userSvc    *user.Service
	carts      *cart.Registry
	eventStore store.EventStoreInterface
}

func NewHandler(
	bookSvc *book.Service,
	userSvc *user.Service,
	carts *cart.Registry,
	eventStore store.EventStoreInterface,
) *Handler {
	return &Handler{
		bookSvc:    bookSvc,
		userSvc:    userSvc,
		carts:      carts,
		eventStore: eventStore,
	}
}

// ListBook creates a listing and records it in the seller's uploads
func (h *Handler) ListBook(ctx context.Context, cmd ListBook) (*book.Book, error) {
	b, err := h.bookSvc.List(ctx, cmd.SellerID, cmd.Listing)
	if err != nil {
		return nil, err
	}

	// The listing exists at this point; a missing history entry is only logged.
	if err := h.userSvc.RecordUpload(ctx, cmd.SellerID, b.ID); err != nil {
		log.Printf("[Command] failed to record upload of %s for %s: %v", b.ID, cmd.SellerID, err)
	}
	return b, nil
}

func (h *Handler) ownedBook(ctx context.Context, bookID, sellerID string) (*book.Book, error) {
	b, err := h.bookSvc.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b.SellerID != sellerID {
		return nil, ErrNotSeller
	}
	return b, nil
}

// EditBook updates a listing of the seller
func (h *Handler) EditBook(ctx context.Context, cmd EditBook) (*book.Book, error) {
	if _, err := h.ownedBook(ctx, cmd.BookID, cmd.SellerID); err != nil {
		return nil, err
	}
	return h.bookSvc.Edit(ctx, cmd.BookID, cmd.Listing)
}

// DeleteBook removes a listing that no cart and no borrower holds
func (h *Handler) DeleteBook(ctx context.Context, cmd DeleteBook) error {
	if _, err := h.ownedBook(ctx, cmd.BookID, cmd.SellerID); err != nil {
		return err
	}
	if h.carts.HoldsBook(cmd.BookID) {
		return ErrBookInCart
	}
	return h.bookSvc.Delete(ctx, cmd.BookID)
}

// FeatureBook pins or unpins one of the seller's listings on the featured shelf.
func (h *Handler) FeatureBook(ctx context.Context, cmd FeatureBook) (*book.Book, error) {
	if _, err := h.ownedBook(ctx, cmd.BookID, cmd.SellerID); err != nil {
		return nil, err
	}
	return h.bookSvc.SetFeatured(ctx, cmd.BookID, cmd.Featured)
}

// ReviewBook appends a review and records it in the reviewer's history
func (h *Handler) ReviewBook(ctx context.Context, cmd ReviewBook) (*book.Book, error) {
	b, err := h.bookSvc.AddReview(ctx, cmd.BookID, cmd.ReviewerID, cmd.Rating, cmd.Comment)
	if err != nil {
		return nil, err
	}
	if err := h.userSvc.RecordReview(ctx, cmd.ReviewerID, cmd.BookID); err != nil {
		log.Printf("[Command] failed to record review of %s for %s: %v", cmd.BookID, cmd.ReviewerID, err)
	}
	return b, nil
}

// ReturnBook ends a borrow
func (h *Handler) ReturnBook(ctx context.Context, cmd ReturnBook) (*book.Book, error) {
	return h.bookSvc.Return(ctx, cmd.BookID, cmd.HolderID)
}

// VariantFor picks the cart a book goes into.
func VariantFor(b *book.Book) cart.Variant {
	if b.ListingType == book.ListingBorrow {
		return cart.Borrow
	}
	return cart.Purchase
}

// AddToCart adds a book at its current price to the cart matching its
// listing type
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (cart.AddOutcome, error) {
	b, err := h.bookSvc.Get(ctx, cmd.BookID)
	if err != nil {
		return cart.Added, err
	}
	if b.SellerID == cmd.UserID {
		return cart.Added, ErrOwnBook
	}
	variant := VariantFor(b)
	if variant == cart.Borrow && !b.Available() {
		return cart.Added, book.ErrAlreadyHeld
	}

	outcome, err := h.carts.Cart(cmd.UserID, variant).AddItem(b.ID, b.Title, b.CurrentPrice, b.CoverRef)
	if err != nil {
		return outcome, err
	}
	if outcome == cart.AtLimit {
		log.Printf("[Command] %s already has %d copies of %s", cmd.UserID, cart.MaxQuantity, b.ID)
	}
	return outcome, nil
}

// SetQuantity changes the copies of a book in the purchase cart
func (h *Handler) SetQuantity(ctx context.Context, cmd SetQuantity) error {
	return h.carts.Cart(cmd.UserID, cart.Purchase).SetQuantity(cmd.BookID, cmd.Quantity)
}

// SetBorrowDays changes the borrow period of a book in the borrow cart
func (h *Handler) SetBorrowDays(ctx context.Context, cmd SetBorrowDays) error {
	return h.carts.Cart(cmd.UserID, cart.Borrow).SetBorrowDays(cmd.BookID, cmd.Days)
}

// RemoveFromCart removes an item from cart
func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) error {
	return h.carts.Cart(cmd.UserID, cmd.Variant).RemoveItem(cmd.BookID)
}

// ClearCart clears all items from cart
func (h *Handler) ClearCart(ctx context.Context, cmd ClearCart) error {
	h.carts.Cart(cmd.UserID, cmd.Variant).Clear()
	return nil
}

// ApplyPromo applies the promo code and reports whether it changed anything
func (h *Handler) ApplyPromo(ctx context.Context, cmd ApplyPromo) (bool, error) {
	return h.carts.Cart(cmd.UserID, cmd.Variant).ApplyPromo(cmd.Code)
}

// Cart returns the current content and totals of a cart
func (h *Handler) Cart(userID string, variant cart.Variant) cart.Snapshot {
	return h.carts.Cart(userID, variant).Snapshot()
}

// Checkout converts a cart into purchases or borrows and empties it
func (h *Handler) Checkout(ctx context.Context, cmd Checkout) (*Receipt, error) {
	c := h.carts.Cart(cmd.UserID, cmd.Variant)
	snap := c.Snapshot()
	if len(snap.Items) == 0 {
		return nil, cart.ErrEmptyCart
	}

	// Check every line before changing any book.
	for _, item := range snap.Items {
		b, err := h.bookSvc.Get(ctx, item.BookID)
		if err != nil {
			return nil, err
		}
		switch snap.Variant {
		case cart.Purchase:
			if b.ListingType != book.ListingSale {
				return nil, book.ErrNotForSale
			}
		case cart.Borrow:
			if b.ListingType != book.ListingBorrow {
				return nil, book.ErrNotBorrowable
			}
			if !b.Available() {
				return nil, book.ErrAlreadyHeld
			}
		}
	}

	var err error
	if snap.Variant == cart.Borrow {
		err = h.borrowAll(ctx, cmd.UserID, snap.Items)
	} else {
		err = h.purchaseAll(ctx, snap.Items)
	}
	if err != nil {
		return nil, err
	}

	c.Settle(snap.Items)

	receipt := &Receipt{
		CartID:       snap.ID,
		Variant:      snap.Variant,
		Items:        snap.Items,
		Totals:       snap.Totals,
		CheckedOutAt: time.Now().UTC(),
	}
	if h.eventStore != nil {
		if _, err := h.eventStore.Append(ctx, snap.ID, cart.AggregateType, cart.EventCheckedOut, cart.CheckedOut{
			CartID:       snap.ID,
			UserID:       cmd.UserID,
			Variant:      snap.Variant,
			Items:        snap.Items,
			Totals:       snap.Totals,
			CheckedOutAt: receipt.CheckedOutAt,
		}); err != nil {
			log.Printf("[Command] failed to append checkout of %s: %v", snap.ID, err)
		}
	}

	log.Printf("[Command] %s checked out %d line(s), total %s", cmd.UserID, len(snap.Items), snap.Totals.Total.StringFixed(2))
	return receipt, nil
}

func (h *Handler) purchaseAll(ctx context.Context, items []cart.Item) error {
	for i, item := range items {
		if _, err := h.bookSvc.RecordPurchase(ctx, item.BookID, item.Quantity); err != nil {
			log.Printf("[Command] purchase of %s failed after %d of %d line(s): %v", item.BookID, i, len(items), err)
			return err
		}
	}
	return nil
}

// borrowAll borrows every line. When one fails, the books already borrowed
// are returned.
func (h *Handler) borrowAll(ctx context.Context, userID string, items []cart.Item) error {
	var borrowed []string
	for _, item := range items {
		if _, err := h.bookSvc.Borrow(ctx, item.BookID, userID, item.BorrowDays); err != nil {
			for _, id := range borrowed {
				if _, rerr := h.bookSvc.Return(ctx, id, userID); rerr != nil {
					log.Printf("[Command] compensation: failed to return %s: %v", id, rerr)
				}
			}
			return err
		}
		borrowed = append(borrowed, item.BookID)
	}

	for _, id := range borrowed {
		if err := h.userSvc.RecordBorrow(ctx, userID, id); err != nil {
			log.Printf("[Command] failed to record borrow of %s for %s: %v", id, userID, err)
		}
	}
	return nil
}
