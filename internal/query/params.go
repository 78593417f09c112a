package query

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPageSize is used when Params.PageSize is not positive.
const DefaultPageSize = 12

// MaxPageSize caps the page size a caller may ask for.
const MaxPageSize = 100

// SortKey selects the ordering of a result.
type SortKey string

const (
	SortRelevance       SortKey = ""
	SortTitle           SortKey = "title"
	SortAuthor          SortKey = "author"
	SortPrice           SortKey = "price"
	SortRating          SortKey = "rating"
	SortPublicationDate SortKey = "publication-date"
)

// ParseSortKey accepts the sort names used by the CLI and the API. Unknown
// names fall back to relevance.
func ParseSortKey(s string) SortKey {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title":
		return SortTitle
	case "author":
		return SortAuthor
	case "price":
		return SortPrice
	case "rating":
		return SortRating
	case "publication-date", "date", "published":
		return SortPublicationDate
	}
	return SortRelevance
}

// Availability narrows a result by listing state.
type Availability string

const (
	AvailabilityAny         Availability = ""
	AvailabilityNow         Availability = "available-now"
	AvailabilityForPurchase Availability = "for-purchase"
	AvailabilityForBorrow   Availability = "for-borrow"
)

// ParseAvailability maps user input onto an Availability. Unknown values
// mean any.
func ParseAvailability(s string) Availability {
	switch Availability(strings.ToLower(strings.TrimSpace(s))) {
	case AvailabilityNow, "available":
		return AvailabilityNow
	case AvailabilityForPurchase, "sale":
		return AvailabilityForPurchase
	case AvailabilityForBorrow, "borrow":
		return AvailabilityForBorrow
	}
	return AvailabilityAny
}

// Params configures a catalog query. Bounds are raw user input; a bound
// that does not parse is logged and ignored.
type Params struct {
	SearchTerm   string
	Author       string
	Publisher    string
	Language     string
	Category     string
	MinPrice     string
	MaxPrice     string
	MinRating    string
	FromDate     string
	ToDate       string
	Availability Availability
	DiscountOnly bool
	SortBy       SortKey
	// Ascending overrides the default direction, which is descending for
	// every key except relevance.
	Ascending *bool
	Page      int
	PageSize  int
}

func (p Params) ascending() bool {
	if p.Ascending != nil {
		return *p.Ascending
	}
	return p.SortBy == SortRelevance
}

func (p Params) pageSize() int {
	switch {
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	case p.PageSize > 0:
		return p.PageSize
	}
	return DefaultPageSize
}

func parsePrice(name, raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("[Query] ignoring %s %q: %v", name, raw, err)
		return decimal.Zero, false
	}
	return d, true
}

func parseRating(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[Query] ignoring min rating %q: %v", raw, err)
		return 0, false
	}
	return f, true
}

func parseDate(name, raw string, resolve func(string) (time.Time, bool)) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	t, ok := resolve(raw)
	if !ok {
		log.Printf("[Query] ignoring %s %q: unrecognized date", name, raw)
	}
	return t, ok
}
