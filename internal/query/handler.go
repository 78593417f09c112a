package query

import (
	"context"
	"sort"
	"strings"

	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/normalize"
	"github.com/example/bookshop/internal/session"
	"github.com/shopspring/decimal"
)

// Catalog is the read side of the book repository.
type Catalog interface {
	GetAll(ctx context.Context) ([]*book.Book, error)
}

// Page is one page of a query result.
type Page struct {
	Books     []*book.Book `json:"books"`
	Page      int          `json:"page"`
	PageSize  int          `json:"page_size"`
	PageCount int          `json:"page_count"`
	Total     int          `json:"total"`
}

type Handler struct {
	catalog  Catalog
	pageSize int
}

// NewHandler creates a query handler. pageSize <= 0 selects DefaultPageSize.
func NewHandler(catalog Catalog, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Handler{catalog: catalog, pageSize: pageSize}
}

// Query searches, filters, sorts and pages the catalog.
func (h *Handler) Query(ctx context.Context, p Params) (*Page, error) {
	books, err := h.catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if p.PageSize <= 0 {
		p.PageSize = h.pageSize
	}
	result := Sort(Filter(books, p), p.SortBy, p.ascending())
	return Paginate(result, p.Page, p.pageSize()), nil
}

// View runs the query behind a catalog view mode.
func (h *Handler) View(ctx context.Context, view session.View, category, publisher string, page int) (*Page, error) {
	p := Params{Page: page}
	switch view {
	case session.ViewHighlyRated:
		p.MinRating = "4"
		p.SortBy = SortRating
	case session.ViewByCategory:
		p.Category = category
	case session.ViewByPublisher:
		p.Publisher = publisher
	}
	return h.Query(ctx, p)
}

// Featured returns the featured shelf in listing order.
func (h *Handler) Featured(ctx context.Context) ([]*book.Book, error) {
	if shelf, ok := h.catalog.(featuredShelf); ok {
		return shelf.Featured(ctx)
	}
	books, err := h.catalog.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	featured := make([]*book.Book, 0)
	for _, b := range books {
		if b.Featured {
			featured = append(featured, b)
		}
	}
	return featured, nil
}

// featuredShelf is implemented by catalogs that list their own featured books.
type featuredShelf interface {
	Featured(ctx context.Context) ([]*book.Book, error)
}

// Filter keeps the books matching p. A search term replaces the author,
// publisher, language and category filters.
func Filter(books []*book.Book, p Params) []*book.Book {
	var preds []func(*book.Book) bool

	if term := strings.TrimSpace(p.SearchTerm); term != "" {
		preds = append(preds, func(b *book.Book) bool { return matchesSearch(b, term) })
	} else {
		if p.Author != "" {
			preds = append(preds, func(b *book.Book) bool { return normalize.Contains(b.Author, p.Author) })
		}
		if p.Publisher != "" {
			preds = append(preds, func(b *book.Book) bool { return normalize.Contains(b.Publisher, p.Publisher) })
		}
		if p.Language != "" {
			preds = append(preds, func(b *book.Book) bool { return normalize.Equal(b.Language, p.Language) })
		}
		if p.Category != "" {
			preds = append(preds, func(b *book.Book) bool { return b.HasCategory(p.Category) })
		}
	}

	if lo, ok := parsePrice("min price", p.MinPrice); ok {
		preds = append(preds, func(b *book.Book) bool { return b.CurrentPrice.GreaterThanOrEqual(lo) })
	}
	if hi, ok := parsePrice("max price", p.MaxPrice); ok {
		preds = append(preds, func(b *book.Book) bool { return b.CurrentPrice.LessThanOrEqual(hi) })
	}
	if floor, ok := parseRating(p.MinRating); ok {
		preds = append(preds, func(b *book.Book) bool { return b.Rating >= floor })
	}
	if from, ok := parseDate("from date", p.FromDate, book.ParsePublicationDate); ok {
		preds = append(preds, func(b *book.Book) bool {
			t, ok := book.ParsePublicationDate(b.PublicationDate)
			return !ok || !t.Before(from)
		})
	}
	// A partial upper bound covers its whole year or month.
	if to, ok := parseDate("to date", p.ToDate, book.PublicationPeriodEnd); ok {
		preds = append(preds, func(b *book.Book) bool {
			t, ok := book.ParsePublicationDate(b.PublicationDate)
			return !ok || !t.After(to)
		})
	}

	switch p.Availability {
	case AvailabilityNow:
		preds = append(preds, (*book.Book).Available)
	case AvailabilityForPurchase:
		preds = append(preds, func(b *book.Book) bool { return b.ListingType == book.ListingSale })
	case AvailabilityForBorrow:
		preds = append(preds, func(b *book.Book) bool { return b.ListingType == book.ListingBorrow })
	}
	if p.DiscountOnly {
		preds = append(preds, (*book.Book).Discounted)
	}

	result := books
	for _, pred := range preds {
		narrowed := make([]*book.Book, 0, len(result))
		for _, b := range result {
			if pred(b) {
				narrowed = append(narrowed, b)
			}
		}
		result = narrowed
	}
	return result
}

func matchesSearch(b *book.Book, term string) bool {
	fields := []string{b.Title, b.Author, b.Publisher, b.Description, b.ISBN, b.ID}
	for _, f := range fields {
		if normalize.Contains(f, term) {
			return true
		}
	}
	for _, c := range b.Categories {
		if normalize.Contains(c, term) {
			return true
		}
	}
	// ISBNs are often typed with dashes.
	if isbn := book.NormalizeISBN(term); isbn != "" && b.ISBN != "" && strings.Contains(b.ISBN, isbn) {
		return true
	}
	return false
}

// Sort orders books by key. Equal keys keep their relative order.
func Sort(books []*book.Book, key SortKey, ascending bool) []*book.Book {
	out := append([]*book.Book(nil), books...)
	var cmp func(a, b *book.Book) int
	switch key {
	case SortTitle:
		cmp = func(a, b *book.Book) int { return strings.Compare(normalize.Fold(a.Title), normalize.Fold(b.Title)) }
	case SortAuthor:
		cmp = func(a, b *book.Book) int { return strings.Compare(normalize.Fold(a.Author), normalize.Fold(b.Author)) }
	case SortPrice:
		cmp = func(a, b *book.Book) int { return a.CurrentPrice.Cmp(b.CurrentPrice) }
	case SortRating:
		cmp = func(a, b *book.Book) int { return compareFloat(a.Rating, b.Rating) }
	case SortPublicationDate:
		cmp = func(a, b *book.Book) int {
			ta, _ := book.ParsePublicationDate(a.PublicationDate)
			tb, _ := book.ParsePublicationDate(b.PublicationDate)
			return ta.Compare(tb)
		}
	default:
		if !ascending {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		}
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return cmp(out[i], out[j]) < 0
		}
		return cmp(out[i], out[j]) > 0
	})
	return out
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Paginate cuts the zero-based page out of books. PageCount is at least 1;
// a page at or past PageCount is empty.
func Paginate(books []*book.Book, page, pageSize int) *Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	if page < 0 {
		page = 0
	}
	total := len(books)
	count := (total + pageSize - 1) / pageSize
	if count < 1 {
		count = 1
	}

	selected := []*book.Book{}
	if page < count && total > 0 {
		start := page * pageSize
		end := start + pageSize
		if end > total {
			end = total
		}
		selected = books[start:end]
	}

	return &Page{
		Books:     selected,
		Page:      page,
		PageSize:  pageSize,
		PageCount: count,
		Total:     total,
	}
}

// PriceRange reports the lowest and highest current price in books.
func PriceRange(books []*book.Book) (decimal.Decimal, decimal.Decimal) {
	if len(books) == 0 {
		return decimal.Zero, decimal.Zero
	}
	lo, hi := books[0].CurrentPrice, books[0].CurrentPrice
	for _, b := range books[1:] {
		lo = decimal.Min(lo, b.CurrentPrice)
		hi = decimal.Max(hi, b.CurrentPrice)
	}
	return lo, hi
}
