package book

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

// Listing is what a seller submits to create or edit a book.
type Listing struct {
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	Publisher       string          `json:"publisher"`
	PublicationDate string          `json:"publication_date"`
	Language        string          `json:"language"`
	ISBN            string          `json:"isbn"`
	PageCount       int             `json:"page_count"`
	Description     string          `json:"description"`
	CoverRef        string          `json:"cover_ref"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Categories      []string        `json:"categories"`
	ListingType     ListingType     `json:"listing_type"`
}

func (l Listing) apply(b *Book) {
	b.Title = l.Title
	b.Author = l.Author
	b.Publisher = l.Publisher
	b.PublicationDate = l.PublicationDate
	b.Language = l.Language
	b.ISBN = l.ISBN
	b.PageCount = l.PageCount
	b.Description = l.Description
	b.CoverRef = l.CoverRef
	b.OriginalPrice = l.Price
	b.DiscountPercent = l.DiscountPercent
	b.Categories = append([]string(nil), l.Categories...)
	b.ListingType = l.ListingType
}

// Service handles book domain operations
type Service struct {
	repo       Repository
	eventStore store.EventStoreInterface
	lookup     Lookup
	now        func() time.Time
}

// NewService creates a book service. lookup may be nil.
func NewService(repo Repository, es store.EventStoreInterface, lookup Lookup) *Service {
	if lookup == nil {
		lookup = NopLookup{}
	}
	return &Service{
		repo:       repo,
		eventStore: es,
		lookup:     lookup,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// emit appends to the change feed. The repository write already happened,
// so a failed append is logged and swallowed.
func (s *Service) emit(ctx context.Context, bookID, eventType string, data any) {
	if s.eventStore == nil {
		return
	}
	if _, err := s.eventStore.Append(ctx, bookID, AggregateType, eventType, data); err != nil {
		log.Printf("[Book] failed to append %s for %s: %v", eventType, bookID, err)
	}
}

func (s *Service) enrich(ctx context.Context, b *Book) {
	if b.ISBN == "" {
		return
	}
	m, err := s.lookup.LookupISBN(ctx, b.ISBN)
	if err != nil || m == nil {
		if err != nil && !errors.Is(err, ErrLookupUnavailable) {
			log.Printf("[Book] isbn lookup for %s failed: %v", b.ISBN, err)
		}
		return
	}
	enrich(b, m)
}

// List creates a new catalog entry for sellerID.
func (s *Service) List(ctx context.Context, sellerID string, l Listing) (*Book, error) {
	b := &Book{SellerID: sellerID}
	l.apply(b)
	b.ISBN = NormalizeISBN(b.ISBN)
	s.enrich(ctx, b)

	if b.OriginalPrice.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.Normalize()
	b.UploadDate = s.now()

	id, err := s.repo.Insert(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id

	s.emit(ctx, id, EventBookListed, BookListed{Book: *b, ListedAt: b.UploadDate})
	return b, nil
}

// Edit replaces the bibliographic and commercial fields of a book. Reviews,
// counters and borrow state are kept.
func (s *Service) Edit(ctx context.Context, id string, l Listing) (*Book, error) {
	if l.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		l.apply(b)
		b.ISBN = NormalizeISBN(b.ISBN)
		if err := b.Validate(); err != nil {
			return err
		}
		b.Normalize()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventBookUpdated, BookUpdated{Book: *updated, UpdatedAt: s.now()})
	return updated, nil
}

// AddReview appends a review and recomputes the rating in the same write.
func (s *Service) AddReview(ctx context.Context, id, reviewerID string, rating float64, comment string) (*Book, error) {
	review := Review{ReviewerID: reviewerID, Rating: rating, Comment: comment, Date: s.now()}
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		return b.AppendReview(review)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventReviewAdded, ReviewAdded{BookID: id, Review: review, Book: *updated})
	return updated, nil
}

// Borrow lends a borrow listing to holderID for days.
func (s *Service) Borrow(ctx context.Context, id, holderID string, days int) (*Book, error) {
	now := s.now()
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		return b.Borrow(holderID, days, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventBookBorrowed, BookBorrowed{BookID: id, HolderID: holderID, DueDate: *updated.ReturnDate, Book: *updated})
	return updated, nil
}

// Return ends the borrow of holderID.
func (s *Service) Return(ctx context.Context, id, holderID string) (*Book, error) {
	now := s.now()
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		return b.Return(holderID, now)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventBookReturned, BookReturned{BookID: id, HolderID: holderID, ReturnedAt: now, Book: *updated})
	return updated, nil
}

// RecordPurchase adds qty to the purchase counter.
func (s *Service) RecordPurchase(ctx context.Context, id string, qty int) (*Book, error) {
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		return b.RecordPurchase(qty)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventBookPurchased, BookPurchased{BookID: id, Quantity: qty, Book: *updated})
	return updated, nil
}

// SetFeatured flags or unflags a book for the featured shelf.
func (s *Service) SetFeatured(ctx context.Context, id string, featured bool) (*Book, error) {
	updated, err := s.repo.Modify(ctx, id, func(b *Book) error {
		b.Featured = featured
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, id, EventBookFeatured, BookFeatured{BookID: id, Featured: featured, Book: *updated})
	return updated, nil
}

// Delete removes a book that nobody holds.
func (s *Service) Delete(ctx context.Context, id string) error {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.Available() {
		return ErrBookHeld
	}

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBookNotFound
	}

	s.emit(ctx, id, EventBookDeleted, BookDeleted{BookID: id, DeletedAt: s.now()})
	return nil
}

// Get returns a book by id.
func (s *Service) Get(ctx context.Context, id string) (*Book, error) {
	return s.repo.Get(ctx, id)
}

// ListBySeller returns the listings of sellerID.
func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]*Book, error) {
	return s.repo.GetByField(ctx, FieldSeller, sellerID)
}

// ListHeldBy returns the books holderID is currently borrowing.
func (s *Service) ListHeldBy(ctx context.Context, holderID string) ([]*Book, error) {
	return s.repo.GetByField(ctx, FieldHolder, holderID)
}
