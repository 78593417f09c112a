package book

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is a minimal Repository for service tests.
type memRepo struct {
	mu    sync.Mutex
	books map[string]Book
	order []string
	seq   int
}

func newMemRepo() *memRepo {
	return &memRepo{books: make(map[string]Book)}
}

func (r *memRepo) Get(ctx context.Context, id string) (*Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	return &b, nil
}

func (r *memRepo) GetAll(ctx context.Context) ([]*Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Book
	for _, id := range r.order {
		if b, ok := r.books[id]; ok {
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r *memRepo) GetByField(ctx context.Context, field Field, value string) ([]*Book, error) {
	all, _ := r.GetAll(ctx)
	var out []*Book
	for _, b := range all {
		switch field {
		case FieldSeller:
			if b.SellerID == value {
				out = append(out, b)
			}
		case FieldHolder:
			if b.HolderID == value {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (r *memRepo) Insert(ctx context.Context, b *Book) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.books {
		if b.ISBN != "" && other.ISBN == b.ISBN {
			return "", ErrDuplicateISBN
		}
	}
	r.seq++
	id := "book-" + strconv.Itoa(r.seq)
	c := *b
	c.ID = id
	r.books[id] = c
	r.order = append(r.order, id)
	return id, nil
}

func (r *memRepo) Update(ctx context.Context, b *Book) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[b.ID]; !ok {
		return false, nil
	}
	r.books[b.ID] = *b
	return true, nil
}

func (r *memRepo) Modify(ctx context.Context, id string, fn func(b *Book) error) (*Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	b.Reviews = append([]Review(nil), b.Reviews...)
	if err := fn(&b); err != nil {
		return nil, err
	}
	r.books[id] = b
	return &b, nil
}

func (r *memRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[id]; !ok {
		return false, nil
	}
	delete(r.books, id)
	return true, nil
}

type stubLookup struct {
	meta *Metadata
	err  error
}

func (l stubLookup) LookupISBN(ctx context.Context, isbn string) (*Metadata, error) {
	return l.meta, l.err
}

func newTestBookService(lookup Lookup) (*Service, *memRepo, *mocks.MockEventStore) {
	repo := newMemRepo()
	eventStore := mocks.NewMockEventStore()
	return NewService(repo, eventStore, lookup), repo, eventStore
}

func draculaListing() Listing {
	return Listing{
		Title:           "Dracula",
		Author:          "Bram Stoker",
		Publisher:       "Archibald Constable",
		PublicationDate: "1897-05-26",
		Language:        "English",
		ISBN:            "978-0-14-143984-6",
		Price:           dec("500"),
		DiscountPercent: dec("10"),
		Categories:      []string{"Horror", "Classics"},
		ListingType:     ListingSale,
	}
}

// ============================================
// List Tests
// ============================================

func TestService_List_Valid(t *testing.T) {
	service, repo, eventStore := newTestBookService(nil)
	ctx := context.Background()

	b, err := service.List(ctx, "seller-1", draculaListing())

	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "9780141439846", b.ISBN)
	assert.True(t, dec("450").Equal(b.CurrentPrice))
	assert.Zero(t, b.Rating)
	assert.Zero(t, b.ReviewCount)
	assert.Zero(t, b.PurchaseCount)
	assert.False(t, b.UploadDate.IsZero())

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller-1", stored.SellerID)

	require.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventBookListed, eventStore.AppendCalls[0].EventType)
	assert.Equal(t, AggregateType, eventStore.AppendCalls[0].AggregateType)
}

func TestService_List_ValidationFailure(t *testing.T) {
	service, repo, eventStore := newTestBookService(nil)

	l := draculaListing()
	l.Title = ""
	l.Categories = nil

	b, err := service.List(context.Background(), "seller-1", l)

	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Nil(t, b)
	assert.Empty(t, repo.books)
	assert.Empty(t, eventStore.AppendCalls)
}

func TestService_List_NegativePrice(t *testing.T) {
	service, _, _ := newTestBookService(nil)

	l := draculaListing()
	l.Price = dec("-10")

	_, err := service.List(context.Background(), "seller-1", l)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestService_List_EnrichesFromLookup(t *testing.T) {
	lookup := stubLookup{meta: &Metadata{
		Title:      "Ignored",
		Author:     "Bram Stoker",
		PageCount:  418,
		Categories: []string{"Horror", "Gothic", "Classics", "Vampires", "Epistolary", "Extra"},
	}}
	service, _, _ := newTestBookService(lookup)

	l := draculaListing()
	l.Author = ""
	l.Categories = nil

	b, err := service.List(context.Background(), "seller-1", l)

	require.NoError(t, err)
	assert.Equal(t, "Dracula", b.Title)
	assert.Equal(t, "Bram Stoker", b.Author)
	assert.Equal(t, 418, b.PageCount)
	assert.Len(t, b.Categories, MaxCategories)
}

func TestService_List_LookupFailureIgnored(t *testing.T) {
	service, _, _ := newTestBookService(stubLookup{err: errors.New("timeout")})

	b, err := service.List(context.Background(), "seller-1", draculaListing())

	require.NoError(t, err)
	assert.Equal(t, "Bram Stoker", b.Author)
}

func TestService_List_EventFailureDoesNotFail(t *testing.T) {
	service, repo, eventStore := newTestBookService(nil)
	eventStore.AppendErr = errors.New("feed down")

	b, err := service.List(context.Background(), "seller-1", draculaListing())

	require.NoError(t, err)
	assert.Contains(t, repo.books, b.ID)
}

// ============================================
// Review Tests
// ============================================

func TestService_AddReview(t *testing.T) {
	service, _, eventStore := newTestBookService(nil)
	ctx := context.Background()
	b, err := service.List(ctx, "seller-1", draculaListing())
	require.NoError(t, err)

	_, err = service.AddReview(ctx, b.ID, "u1", 5, "Chilling")
	require.NoError(t, err)
	updated, err := service.AddReview(ctx, b.ID, "u2", 2, "Too long")
	require.NoError(t, err)

	assert.Equal(t, 2, updated.ReviewCount)
	assert.InDelta(t, 3.5, updated.Rating, 1e-9)
	assert.Equal(t, []string{EventBookListed, EventReviewAdded, EventReviewAdded}, eventStore.EventTypes())
}

func TestService_AddReview_Concurrent(t *testing.T) {
	service, repo, _ := newTestBookService(nil)
	ctx := context.Background()
	b, err := service.List(ctx, "seller-1", draculaListing())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.AddReview(ctx, b.ID, "u"+strconv.Itoa(i), float64(1+i%5), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.ReviewCount)
	assert.Len(t, stored.Reviews, 20)
	assert.InDelta(t, 3.0, stored.Rating, 1e-9)
}

func TestService_AddReview_NotFound(t *testing.T) {
	service, _, _ := newTestBookService(nil)

	_, err := service.AddReview(context.Background(), "missing", "u1", 4, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ============================================
// Borrow / Purchase / Delete Tests
// ============================================

func TestService_BorrowReturnDelete(t *testing.T) {
	service, _, eventStore := newTestBookService(nil)
	ctx := context.Background()

	l := draculaListing()
	l.ListingType = ListingBorrow
	b, err := service.List(ctx, "seller-1", l)
	require.NoError(t, err)

	borrowed, err := service.Borrow(ctx, b.ID, "reader-1", 14)
	require.NoError(t, err)
	assert.Equal(t, "reader-1", borrowed.HolderID)

	held, err := service.ListHeldBy(ctx, "reader-1")
	require.NoError(t, err)
	assert.Len(t, held, 1)

	err = service.Delete(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookHeld)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = service.Return(ctx, b.ID, "reader-1")
	require.NoError(t, err)
	require.NoError(t, service.Delete(ctx, b.ID))

	_, err = service.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	types := eventStore.EventTypes()
	assert.Equal(t, EventBookDeleted, types[len(types)-1])
}

func TestService_RecordPurchaseAndFeature(t *testing.T) {
	service, _, _ := newTestBookService(nil)
	ctx := context.Background()
	b, err := service.List(ctx, "seller-1", draculaListing())
	require.NoError(t, err)

	updated, err := service.RecordPurchase(ctx, b.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.PurchaseCount)

	updated, err = service.SetFeatured(ctx, b.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.Featured)
	assert.Equal(t, 3, updated.PurchaseCount)
}

func TestService_Edit_KeepsReviews(t *testing.T) {
	service, _, _ := newTestBookService(nil)
	ctx := context.Background()
	b, err := service.List(ctx, "seller-1", draculaListing())
	require.NoError(t, err)
	_, err = service.AddReview(ctx, b.ID, "u1", 4, "")
	require.NoError(t, err)

	l := draculaListing()
	l.Price = dec("300")
	l.DiscountPercent = dec("50")
	edited, err := service.Edit(ctx, b.ID, l)

	require.NoError(t, err)
	assert.True(t, dec("150").Equal(edited.CurrentPrice))
	assert.Equal(t, 1, edited.ReviewCount)

	l.Title = strings.Repeat(" ", 3)
	_, err = service.Edit(ctx, b.ID, l)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
