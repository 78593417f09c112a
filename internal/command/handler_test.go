package command

import (
	"context"
	"testing"

	"github.com/example/bookshop/internal/catalog"
	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/example/bookshop/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failOnUpdate fails every Update of one document, e.g. a book whose row
// is locked by another client. onUpdate, when set, runs before each Update.
type failOnUpdate struct {
	store.DocumentStore
	id       string
	onUpdate func(id string)
}

func (f *failOnUpdate) Update(ctx context.Context, collection, id string, fn func([]byte) ([]byte, error)) error {
	if f.onUpdate != nil {
		f.onUpdate(id)
	}
	if id == f.id {
		return store.ErrUnavailable
	}
	return f.DocumentStore.Update(ctx, collection, id, fn)
}

type testEnv struct {
	handler    *Handler
	docs       *mocks.MockDocumentStore
	eventStore *mocks.MockEventStore
	books      *book.Service
	users      *user.Service
	carts      *cart.Registry
	failing    *failOnUpdate
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docs := mocks.NewMockDocumentStore()
	failing := &failOnUpdate{DocumentStore: docs}
	eventStore := mocks.NewMockEventStore()

	books := book.NewService(catalog.NewRepository(failing), eventStore, nil)
	users := user.NewService(docs, eventStore)
	carts := cart.NewRegistry(cart.DefaultConfig())

	return &testEnv{
		handler:    NewHandler(books, users, carts, eventStore),
		docs:       docs,
		eventStore: eventStore,
		books:      books,
		users:      users,
		carts:      carts,
		failing:    failing,
	}
}

func (e *testEnv) register(t *testing.T, username string) *user.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), user.Registration{
		FullName: "Test " + username,
		Email:    username + "@example.com",
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) list(t *testing.T, sellerID, title string, lt book.ListingType, price string) *book.Book {
	t.Helper()
	b, err := e.handler.ListBook(context.Background(), ListBook{
		SellerID: sellerID,
		Listing: book.Listing{
			Title:       title,
			Author:      "Author of " + title,
			Price:       decimal.RequireFromString(price),
			Categories:  []string{"Fiction"},
			ListingType: lt,
		},
	})
	require.NoError(t, err)
	return b
}

// ============================================
// Listing Tests
// ============================================

func TestHandler_ListBook_RecordsUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.register(t, "seller")

	b := env.list(t, seller.ID, "Dracula", book.ListingSale, "500")

	assert.NotEmpty(t, b.ID)
	u, err := env.users.Get(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, u.Uploaded)
}

func TestHandler_ListBook_UnknownSellerHistoryNotFatal(t *testing.T) {
	env := newTestEnv(t)

	b := env.list(t, "4b0c6a8e-0000-4000-8000-000000000000", "Dracula", book.ListingSale, "500")

	assert.NotEmpty(t, b.ID)
}

func TestHandler_ListBook_Invalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.ListBook(context.Background(), ListBook{
		SellerID: "seller",
		Listing:  book.Listing{Title: "No author", ListingType: book.ListingSale},
	})

	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestHandler_EditBook_OnlySeller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.register(t, "seller")
	b := env.list(t, seller.ID, "Dracula", book.ListingSale, "500")

	listing := book.Listing{
		Title:       "Dracula",
		Author:      "Bram Stoker",
		Price:       decimal.NewFromInt(400),
		Categories:  []string{"Horror"},
		ListingType: book.ListingSale,
	}

	_, err := env.handler.EditBook(ctx, EditBook{BookID: b.ID, SellerID: "someone-else", Listing: listing})
	assert.ErrorIs(t, err, ErrNotSeller)

	updated, err := env.handler.EditBook(ctx, EditBook{BookID: b.ID, SellerID: seller.ID, Listing: listing})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(updated.CurrentPrice))
}

func TestHandler_DeleteBook(t *testing.T) {
	tests := []struct {
		name    string
		seller  func(owner string) string
		inCart  bool
		wantErr error
	}{
		{name: "owner deletes", seller: func(owner string) string { return owner }},
		{name: "other user", seller: func(string) string { return "intruder" }, wantErr: ErrNotSeller},
		{name: "book in a cart", seller: func(owner string) string { return owner }, inCart: true, wantErr: ErrBookInCart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			seller := env.register(t, "seller")
			b := env.list(t, seller.ID, "Dracula", book.ListingSale, "500")

			if tt.inCart {
				_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: b.ID})
				require.NoError(t, err)
			}

			err := env.handler.DeleteBook(ctx, DeleteBook{BookID: b.ID, SellerID: tt.seller(seller.ID)})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, getErr := env.books.Get(ctx, b.ID)
				assert.NoError(t, getErr)
				return
			}
			require.NoError(t, err)
			_, getErr := env.books.Get(ctx, b.ID)
			assert.ErrorIs(t, getErr, book.ErrBookNotFound)
		})
	}
}

func TestHandler_FeatureBook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.register(t, "seller")
	b := env.list(t, seller.ID, "Dracula", book.ListingSale, "500")

	_, err := env.handler.FeatureBook(ctx, FeatureBook{BookID: b.ID, SellerID: "intruder", Featured: true})
	assert.ErrorIs(t, err, ErrNotSeller)

	featured, err := env.handler.FeatureBook(ctx, FeatureBook{BookID: b.ID, SellerID: seller.ID, Featured: true})
	require.NoError(t, err)
	assert.True(t, featured.Featured)
	assert.Contains(t, env.eventStore.EventTypes(), book.EventBookFeatured)

	unfeatured, err := env.handler.FeatureBook(ctx, FeatureBook{BookID: b.ID, SellerID: seller.ID})
	require.NoError(t, err)
	assert.False(t, unfeatured.Featured)
}

// ============================================
// Review Tests
// ============================================

func TestHandler_ReviewBook_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seller := env.register(t, "seller")
	reader := env.register(t, "reader")
	b := env.list(t, seller.ID, "Dracula", book.ListingSale, "500")

	updated, err := env.handler.ReviewBook(ctx, ReviewBook{BookID: b.ID, ReviewerID: reader.ID, Rating: 4, Comment: "Spooky"})
	require.NoError(t, err)

	assert.Equal(t, 4.0, updated.Rating)
	assert.Equal(t, 1, updated.ReviewCount)
	u, err := env.users.Get(ctx, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, u.Reviewed)
}

func TestHandler_ReviewBook_InvalidRating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.list(t, "seller", "Dracula", book.ListingSale, "500")

	_, err := env.handler.ReviewBook(ctx, ReviewBook{BookID: b.ID, ReviewerID: "reader", Rating: 6})

	assert.ErrorIs(t, err, book.ErrInvalidRating)
}

// ============================================
// Cart Tests
// ============================================

func TestHandler_AddToCart_ChoosesVariant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.list(t, "seller", "Dracula", book.ListingSale, "500")
	lend := env.list(t, "seller", "Emma", book.ListingBorrow, "0")

	outcome, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: sale.ID})
	require.NoError(t, err)
	assert.Equal(t, cart.Added, outcome)

	outcome, err = env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: sale.ID})
	require.NoError(t, err)
	assert.Equal(t, cart.Incremented, outcome)

	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: lend.ID})
	require.NoError(t, err)

	purchase := env.handler.Cart("buyer", cart.Purchase)
	require.Len(t, purchase.Items, 1)
	assert.Equal(t, 2, purchase.Items[0].Quantity)
	assert.Equal(t, "Dracula", purchase.Items[0].Name)

	borrow := env.handler.Cart("buyer", cart.Borrow)
	require.Len(t, borrow.Items, 1)
	assert.Equal(t, cart.DefaultBorrowDays, borrow.Items[0].BorrowDays)
}

func TestHandler_AddToCart_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lend := env.list(t, "seller", "Emma", book.ListingBorrow, "0")
	_, err := env.books.Borrow(ctx, lend.ID, "someone", 14)
	require.NoError(t, err)

	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: lend.ID})
	assert.ErrorIs(t, err, book.ErrAlreadyHeld)

	own := env.list(t, "seller", "Dracula", book.ListingSale, "500")
	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "seller", BookID: own.ID})
	assert.ErrorIs(t, err, ErrOwnBook)

	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: "4b0c6a8e-0000-4000-8000-000000000000"})
	assert.ErrorIs(t, err, book.ErrBookNotFound)
}

func TestHandler_CartEditing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sale := env.list(t, "seller", "Dracula", book.ListingSale, "100")
	lend := env.list(t, "seller", "Emma", book.ListingBorrow, "0")

	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: sale.ID})
	require.NoError(t, err)
	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: lend.ID})
	require.NoError(t, err)

	require.NoError(t, env.handler.SetQuantity(ctx, SetQuantity{UserID: "buyer", BookID: sale.ID, Quantity: 3}))
	require.NoError(t, env.handler.SetBorrowDays(ctx, SetBorrowDays{UserID: "buyer", BookID: lend.ID, Days: 7}))
	assert.ErrorIs(t, env.handler.SetQuantity(ctx, SetQuantity{UserID: "buyer", BookID: sale.ID, Quantity: 0}), cart.ErrInvalidQuantity)

	applied, err := env.handler.ApplyPromo(ctx, ApplyPromo{UserID: "buyer", Variant: cart.Purchase, Code: "BOOKWORM"})
	require.NoError(t, err)
	assert.True(t, applied)

	purchase := env.handler.Cart("buyer", cart.Purchase)
	assert.Equal(t, 3, purchase.Items[0].Quantity)
	assert.True(t, purchase.Totals.PromoApplied)
	assert.Equal(t, 7, env.handler.Cart("buyer", cart.Borrow).Items[0].BorrowDays)

	require.NoError(t, env.handler.RemoveFromCart(ctx, RemoveFromCart{UserID: "buyer", BookID: lend.ID, Variant: cart.Borrow}))
	assert.Empty(t, env.handler.Cart("buyer", cart.Borrow).Items)

	require.NoError(t, env.handler.ClearCart(ctx, ClearCart{UserID: "buyer", Variant: cart.Purchase}))
	assert.Empty(t, env.handler.Cart("buyer", cart.Purchase).Items)
}

// ============================================
// Checkout Tests
// ============================================

func TestHandler_Checkout_Purchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.list(t, "seller", "Dracula", book.ListingSale, "100")

	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: b.ID})
	require.NoError(t, err)
	require.NoError(t, env.handler.SetQuantity(ctx, SetQuantity{UserID: "buyer", BookID: b.ID, Quantity: 2}))
	before := env.handler.Cart("buyer", cart.Purchase)

	receipt, err := env.handler.Checkout(ctx, Checkout{UserID: "buyer", Variant: cart.Purchase})
	require.NoError(t, err)

	assert.Equal(t, cart.GetCartID("buyer")+"-purchase", receipt.CartID)
	assert.True(t, before.Totals.Total.Equal(receipt.Totals.Total))
	assert.Empty(t, env.handler.Cart("buyer", cart.Purchase).Items)

	stored, err := env.books.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.PurchaseCount)
	assert.Contains(t, env.eventStore.EventTypes(), cart.EventCheckedOut)
}

func TestHandler_Checkout_Borrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reader := env.register(t, "reader")
	b := env.list(t, "seller", "Emma", book.ListingBorrow, "0")

	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: reader.ID, BookID: b.ID})
	require.NoError(t, err)

	_, err = env.handler.Checkout(ctx, Checkout{UserID: reader.ID, Variant: cart.Borrow})
	require.NoError(t, err)

	stored, err := env.books.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, reader.ID, stored.HolderID)
	u, err := env.users.Get(ctx, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, u.Borrowed)
}

func TestHandler_Checkout_KeepsLinesAddedMeanwhile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.list(t, "seller", "Dracula", book.ListingSale, "100")
	late := env.list(t, "seller", "Emma", book.ListingSale, "50")
	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: first.ID})
	require.NoError(t, err)

	// A second request adds a book while the first line is being bought.
	env.failing.onUpdate = func(id string) {
		if id != first.ID {
			return
		}
		env.failing.onUpdate = nil
		_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: late.ID})
		require.NoError(t, err)
	}

	receipt, err := env.handler.Checkout(ctx, Checkout{UserID: "buyer", Variant: cart.Purchase})
	require.NoError(t, err)

	require.Len(t, receipt.Items, 1)
	assert.Equal(t, first.ID, receipt.Items[0].BookID)
	remaining := env.handler.Cart("buyer", cart.Purchase).Items
	require.Len(t, remaining, 1)
	assert.Equal(t, late.ID, remaining[0].BookID)

	stored, err := env.books.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.PurchaseCount)
}

func TestHandler_Checkout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handler.Checkout(context.Background(), Checkout{UserID: "buyer", Variant: cart.Purchase})

	assert.ErrorIs(t, err, cart.ErrEmptyCart)
	assert.Empty(t, env.eventStore.AppendCalls)
}

func TestHandler_Checkout_BookGoneKeepsCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.list(t, "seller", "Dracula", book.ListingSale, "100")
	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "buyer", BookID: b.ID})
	require.NoError(t, err)

	// Deleted behind the cart's back, e.g. by another process.
	require.NoError(t, env.books.Delete(ctx, b.ID))

	_, err = env.handler.Checkout(ctx, Checkout{UserID: "buyer", Variant: cart.Purchase})

	assert.ErrorIs(t, err, book.ErrBookNotFound)
	assert.Len(t, env.handler.Cart("buyer", cart.Purchase).Items, 1)
}

func TestHandler_Checkout_BorrowFailureCompensates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.list(t, "seller", "Emma", book.ListingBorrow, "0")
	second := env.list(t, "seller", "Persuasion", book.ListingBorrow, "0")

	_, err := env.handler.AddToCart(ctx, AddToCart{UserID: "reader", BookID: first.ID})
	require.NoError(t, err)
	_, err = env.handler.AddToCart(ctx, AddToCart{UserID: "reader", BookID: second.ID})
	require.NoError(t, err)

	env.failing.id = second.ID

	_, err = env.handler.Checkout(ctx, Checkout{UserID: "reader", Variant: cart.Borrow})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	// The first book went back on the shelf and the cart is untouched.
	stored, err := env.books.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.Available())
	assert.Len(t, env.handler.Cart("reader", cart.Borrow).Items, 2)
	assert.NotContains(t, env.eventStore.EventTypes(), cart.EventCheckedOut)
}
