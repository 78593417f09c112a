package book

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/example/bookshop/internal/domain"
	"github.com/shopspring/decimal"
)

const AggregateType = "Book"

const (
	MinCategories = 1
	MaxCategories = 5
	MinRating     = 1
	MaxRating     = 5
	MaxBorrowDays = 90
)

var (
	ErrBookNotFound      = fmt.Errorf("%w: book not found", domain.ErrNotFound)
	ErrInvalidID         = fmt.Errorf("%w: malformed book id", domain.ErrInvalidArgument)
	ErrInvalidPrice      = fmt.Errorf("%w: price must not be negative", domain.ErrInvalidArgument)
	ErrInvalidRating     = fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidArgument)
	ErrInvalidReviewer   = fmt.Errorf("%w: reviewer is required", domain.ErrInvalidArgument)
	ErrInvalidBorrowDays = fmt.Errorf("%w: borrow days must be between 1 and 90", domain.ErrInvalidArgument)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	ErrInvalidHolder     = fmt.Errorf("%w: holder is required", domain.ErrInvalidArgument)
	ErrNotBorrowable     = fmt.Errorf("%w: book is not listed for borrowing", domain.ErrConflict)
	ErrNotForSale        = fmt.Errorf("%w: book is not listed for sale", domain.ErrConflict)
	ErrAlreadyHeld       = fmt.Errorf("%w: book is already borrowed", domain.ErrConflict)
	ErrNotHeld           = fmt.Errorf("%w: book is not borrowed by this user", domain.ErrConflict)
	ErrBookHeld          = fmt.Errorf("%w: book is borrowed and cannot be deleted", domain.ErrConflict)
	ErrDuplicateISBN     = fmt.Errorf("%w: isbn already listed", domain.ErrConflict)
)

func init() {
	// Prices are stored as JSON numbers so stores can sort on them.
	decimal.MarshalJSONWithoutQuotes = true
}

var hundred = decimal.NewFromInt(100)

// ListingType tells whether a book is sold or lent.
type ListingType string

const (
	ListingSale   ListingType = "sale"
	ListingBorrow ListingType = "borrow"
)

func (t ListingType) Valid() bool {
	return t == ListingSale || t == ListingBorrow
}

// Review is immutable once appended to a book.
type Review struct {
	ReviewerID string    `json:"reviewer_id"`
	Rating     float64   `json:"rating"`
	Comment    string    `json:"comment"`
	Date       time.Time `json:"date"`
}

// Book is the catalog record.
type Book struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	Publisher       string          `json:"publisher"`
	PublicationDate string          `json:"publication_date"`
	Language        string          `json:"language"`
	ISBN            string          `json:"isbn"`
	PageCount       int             `json:"page_count"`
	Description     string          `json:"description"`
	CoverRef        string          `json:"cover_ref"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Categories      []string        `json:"categories"`
	Rating          float64         `json:"rating"`
	ReviewCount     int             `json:"review_count"`
	PurchaseCount   int             `json:"purchase_count"`
	ListingType     ListingType     `json:"listing_type"`
	SellerID        string          `json:"seller_id"`
	HolderID        string          `json:"holder_id,omitempty"`
	UploadDate      time.Time       `json:"upload_date"`
	BorrowDate      *time.Time      `json:"borrow_date,omitempty"`
	ReturnDate      *time.Time      `json:"return_date,omitempty"`
	Featured        bool            `json:"featured"`
	Reviews         []Review        `json:"reviews"`
}

// CurrentPrice applies discount (clamped to [0,100] percent) to original.
func CurrentPrice(original, discount decimal.Decimal) decimal.Decimal {
	d := clampDiscount(discount)
	return original.Mul(decimal.NewFromInt(1).Sub(d.Div(hundred)))
}

func clampDiscount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// SetPricing updates the commercial fields together so the current price
// never disagrees with the original price and discount.
func (b *Book) SetPricing(original, discount decimal.Decimal) error {
	if original.IsNegative() {
		return ErrInvalidPrice
	}
	b.OriginalPrice = original
	b.DiscountPercent = clampDiscount(discount)
	b.CurrentPrice = CurrentPrice(original, b.DiscountPercent)
	return nil
}

// Discounted reports whether a positive discount applies.
func (b *Book) Discounted() bool {
	return b.DiscountPercent.IsPositive()
}

// Available reports whether nobody currently holds the book.
func (b *Book) Available() bool {
	return b.HolderID == ""
}

// HasCategory reports whether label is one of the book's categories,
// spelled exactly the same.
func (b *Book) HasCategory(label string) bool {
	for _, c := range b.Categories {
		if c == label {
			return true
		}
	}
	return false
}

// AppendReview adds r and recomputes rating and review count from the full
// review list.
func (b *Book) AppendReview(r Review) error {
	if strings.TrimSpace(r.ReviewerID) == "" {
		return ErrInvalidReviewer
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return ErrInvalidRating
	}
	b.Reviews = append(b.Reviews, r)
	b.recomputeRating()
	return nil
}

func (b *Book) recomputeRating() {
	if len(b.Reviews) == 0 {
		b.Rating = 0
		b.ReviewCount = 0
		return
	}
	var sum float64
	for _, r := range b.Reviews {
		sum += r.Rating
	}
	b.Rating = sum / float64(len(b.Reviews))
	b.ReviewCount = len(b.Reviews)
}

// Borrow hands the book to holder for days starting at now.
func (b *Book) Borrow(holder string, days int, now time.Time) error {
	if strings.TrimSpace(holder) == "" {
		return ErrInvalidHolder
	}
	if b.ListingType != ListingBorrow {
		return ErrNotBorrowable
	}
	if !b.Available() {
		return ErrAlreadyHeld
	}
	if days < 1 || days > MaxBorrowDays {
		return ErrInvalidBorrowDays
	}
	due := now.AddDate(0, 0, days)
	b.HolderID = holder
	b.BorrowDate = &now
	b.ReturnDate = &due
	return nil
}

// Return ends the borrow held by holder.
func (b *Book) Return(holder string, now time.Time) error {
	if b.Available() || b.HolderID != holder {
		return ErrNotHeld
	}
	b.HolderID = ""
	b.ReturnDate = &now
	return nil
}

// RecordPurchase adds qty sold copies.
func (b *Book) RecordPurchase(qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if b.ListingType != ListingSale {
		return ErrNotForSale
	}
	b.PurchaseCount += qty
	return nil
}

// Normalize substitutes defaults for missing optional fields and re-derives
// values that must agree with other fields.
func (b *Book) Normalize() {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Publisher = strings.TrimSpace(b.Publisher)
	b.Language = strings.TrimSpace(b.Language)
	b.ISBN = NormalizeISBN(b.ISBN)
	if b.Categories == nil {
		b.Categories = []string{}
	}
	if b.Reviews == nil {
		b.Reviews = []Review{}
	}
	if !b.ListingType.Valid() {
		b.ListingType = ListingSale
	}
	if b.PageCount < 0 {
		b.PageCount = 0
	}
	if b.OriginalPrice.IsNegative() {
		b.OriginalPrice = decimal.Zero
	}
	b.DiscountPercent = clampDiscount(b.DiscountPercent)
	b.CurrentPrice = CurrentPrice(b.OriginalPrice, b.DiscountPercent)

	if len(b.Reviews) > 0 {
		b.recomputeRating()
	}
	if b.Rating < 0 {
		b.Rating = 0
	}
	if b.Rating > MaxRating {
		b.Rating = MaxRating
	}
	if b.PurchaseCount < 0 {
		b.PurchaseCount = 0
	}
}

// Validate checks a listing before it enters the catalog.
func (b *Book) Validate() error {
	verr := domain.NewValidationError()

	if strings.TrimSpace(b.Title) == "" {
		verr.Add("title", "title is required")
	}
	if strings.TrimSpace(b.Author) == "" {
		verr.Add("author", "author is required")
	}

	labels := make(map[string]bool, len(b.Categories))
	for _, c := range b.Categories {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			verr.Add("categories", "category labels must not be empty")
		}
		labels[key] = true
	}
	if len(labels) < MinCategories || len(labels) > MaxCategories {
		verr.Add("categories", fmt.Sprintf("between %d and %d distinct categories are required", MinCategories, MaxCategories))
	}

	if b.OriginalPrice.IsNegative() {
		verr.Add("price", "price must not be negative")
	}
	if b.DiscountPercent.IsNegative() || b.DiscountPercent.GreaterThan(hundred) {
		verr.Add("discount", "discount must be between 0 and 100")
	}
	if b.ISBN != "" && !ValidISBN(b.ISBN) {
		verr.Add("isbn", "isbn must have 10 or 13 digits")
	}
	if b.PageCount < 0 {
		verr.Add("page_count", "page count must not be negative")
	}
	if !b.ListingType.Valid() {
		verr.Add("listing_type", "listing type must be sale or borrow")
	}
	if b.SellerID == "" {
		verr.Add("seller", "seller is required")
	}

	return verr.OrNil()
}

// Describe is a one line summary used in logs and the CLI.
func (b *Book) Describe() string {
	return fmt.Sprintf("%s by %s (%s)", b.Title, b.Author, b.CurrentPrice.StringFixed(2))
}

// NormalizeISBN drops separators and upper-cases a trailing check letter.
func NormalizeISBN(isbn string) string {
	var sb strings.Builder
	for _, r := range isbn {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// ValidISBN checks the shape of a normalized ISBN-10 or ISBN-13.
func ValidISBN(isbn string) bool {
	switch len(isbn) {
	case 10:
		for i, r := range isbn {
			if r >= '0' && r <= '9' {
				continue
			}
			if r == 'X' && i == 9 {
				continue
			}
			return false
		}
		return true
	case 13:
		for _, r := range isbn {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return false
}

var publicationLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01",
	"2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02/01/2006",
}

// ParsePublicationDate accepts the date shapes found in seller listings and
// bibliographic data.
func ParsePublicationDate(s string) (time.Time, bool) {
	t, _, ok := parsePublication(s)
	return t, ok
}

// PublicationPeriodEnd returns the last instant of the period s names:
// "2020" ends on 2020-12-31, "2020-05" on 2020-05-31 and a full date at the
// end of that day. A timestamp is returned unchanged.
func PublicationPeriodEnd(s string) (time.Time, bool) {
	t, layout, ok := parsePublication(s)
	if !ok {
		return time.Time{}, false
	}
	switch layout {
	case time.RFC3339:
		return t, true
	case "2006":
		return t.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	case "2006-01":
		return t.AddDate(0, 1, 0).Add(-time.Nanosecond), true
	}
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond), true
}

func parsePublication(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, "", false
	}
	for _, layout := range publicationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}
