package cart

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/normalize"
	"github.com/shopspring/decimal"
)

const AggregateType = "Cart"

const (
	MinQuantity       = 1
	MaxQuantity       = 99
	MinBorrowDays     = 1
	MaxBorrowDays     = 90
	DefaultBorrowDays = 30
)

var (
	ErrInvalidItem       = fmt.Errorf("%w: book id and name are required", domain.ErrInvalidArgument)
	ErrInvalidPrice      = fmt.Errorf("%w: price must not be negative", domain.ErrInvalidArgument)
	ErrInvalidQuantity   = fmt.Errorf("%w: quantity must be between 1 and 99", domain.ErrInvalidArgument)
	ErrInvalidBorrowDays = fmt.Errorf("%w: borrow days must be between 1 and 90", domain.ErrInvalidArgument)
	ErrInvalidPromo      = fmt.Errorf("%w: unknown promo code", domain.ErrInvalidArgument)
	ErrWrongVariant      = fmt.Errorf("%w: operation does not apply to this cart", domain.ErrInvalidArgument)
	ErrItemNotFound      = fmt.Errorf("%w: item not in cart", domain.ErrNotFound)
	ErrAlreadyInCart     = fmt.Errorf("%w: book is already in the cart", domain.ErrConflict)
	ErrEmptyCart         = fmt.Errorf("%w: cart is empty", domain.ErrConflict)
)

// Variant decides how a cart treats a book that is added twice.
type Variant string

const (
	// Purchase carts count copies.
	Purchase Variant = "purchase"
	// Borrow carts hold each book once, for a number of days.
	Borrow Variant = "borrow"
)

func (v Variant) Valid() bool {
	return v == Purchase || v == Borrow
}

// AddOutcome reports what AddItem did.
type AddOutcome int

const (
	Added AddOutcome = iota
	Incremented
	// AtLimit means the quantity was already at MaxQuantity and was left
	// unchanged.
	AtLimit
)

func (o AddOutcome) String() string {
	switch o {
	case Added:
		return "added"
	case Incremented:
		return "incremented"
	case AtLimit:
		return "at limit"
	}
	return "unknown"
}

// Config holds the pricing rules of a deployment.
type Config struct {
	OnlineFee    decimal.Decimal
	DeliveryFee  decimal.Decimal
	PromoCode    string
	PromoPercent decimal.Decimal
}

// DefaultConfig returns the fees and promo of the reference shop.
func DefaultConfig() Config {
	return Config{
		OnlineFee:    decimal.NewFromInt(58),
		DeliveryFee:  decimal.NewFromInt(60),
		PromoCode:    "BOOKWORM",
		PromoPercent: decimal.NewFromInt(10),
	}
}

// Item is one line of a cart.
type Item struct {
	BookID     string          `json:"book_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ImageRef   string          `json:"image_ref,omitempty"`
	Quantity   int             `json:"quantity"`
	BorrowDays int             `json:"borrow_days,omitempty"`
}

// LineTotal is the unit price times the quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Totals is the priced state of a cart.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	OnlineFee    decimal.Decimal `json:"online_fee"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	Total        decimal.Decimal `json:"total"`
	PromoApplied bool            `json:"promo_applied"`
	ItemCount    int             `json:"item_count"`
}

// Cart is the set of lines a user is about to buy or borrow. It is safe for
// concurrent use.
type Cart struct {
	id      string
	variant Variant
	cfg     Config

	mu    sync.Mutex
	items map[string]*Item
	order []string
	promo bool
}

// New creates an empty cart.
func New(id string, variant Variant, cfg Config) *Cart {
	if !variant.Valid() {
		variant = Purchase
	}
	return &Cart{
		id:      id,
		variant: variant,
		cfg:     cfg,
		items:   make(map[string]*Item),
	}
}

func (c *Cart) ID() string       { return c.id }
func (c *Cart) Variant() Variant { return c.variant }

// AddItem puts a book in the cart. A purchase cart increments the quantity
// of a book it already holds, up to MaxQuantity. A borrow cart rejects it.
func (c *Cart) AddItem(bookID, name string, price decimal.Decimal, imageRef string) (AddOutcome, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" || strings.TrimSpace(name) == "" {
		return Added, ErrInvalidItem
	}
	if price.IsNegative() {
		return Added, ErrInvalidPrice
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[bookID]; ok {
		if c.variant == Borrow {
			return Added, ErrAlreadyInCart
		}
		if existing.Quantity >= MaxQuantity {
			log.Printf("[Cart] %s: %s already at %d copies", c.id, bookID, MaxQuantity)
			return AtLimit, nil
		}
		existing.Quantity++
		return Incremented, nil
	}

	item := &Item{BookID: bookID, Name: name, UnitPrice: price, ImageRef: imageRef, Quantity: 1}
	if c.variant == Borrow {
		item.BorrowDays = DefaultBorrowDays
	}
	c.items[bookID] = item
	c.order = append(c.order, bookID)
	return Added, nil
}

// SetQuantity sets the copies of a book. Out of range values are rejected
// and the previous quantity stays.
func (c *Cart) SetQuantity(bookID string, n int) error {
	if c.variant != Purchase {
		return ErrWrongVariant
	}
	if n < MinQuantity || n > MaxQuantity {
		return ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[bookID]
	if !ok {
		return ErrItemNotFound
	}
	item.Quantity = n
	return nil
}

// SetBorrowDays sets how long a borrowed book is kept.
func (c *Cart) SetBorrowDays(bookID string, n int) error {
	if c.variant != Borrow {
		return ErrWrongVariant
	}
	if n < MinBorrowDays || n > MaxBorrowDays {
		return ErrInvalidBorrowDays
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[bookID]
	if !ok {
		return ErrItemNotFound
	}
	item.BorrowDays = n
	return nil
}

func (c *Cart) RemoveItem(bookID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[bookID]; !ok {
		return ErrItemNotFound
	}
	delete(c.items, bookID)
	for i, id := range c.order {
		if id == bookID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear empties the cart and drops an applied promo.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*Item)
	c.order = nil
	c.promo = false
}

// Settle takes checked-out lines off the cart. A line whose quantity grew
// since keeps the difference; lines added since stay untouched. The promo
// is dropped once the cart is empty.
func (c *Cart) Settle(settled []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range settled {
		item, ok := c.items[s.BookID]
		if !ok {
			continue
		}
		if item.Quantity > s.Quantity {
			item.Quantity -= s.Quantity
			continue
		}
		delete(c.items, s.BookID)
	}
	order := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.items[id]; ok {
			order = append(order, id)
		}
	}
	c.order = order
	if len(c.items) == 0 {
		c.promo = false
	}
}

// ApplyPromo applies the configured promo code, ignoring case. It reports
// false when the promo was already applied.
func (c *Cart) ApplyPromo(code string) (bool, error) {
	if c.cfg.PromoCode == "" || !normalize.Equal(code, c.cfg.PromoCode) {
		return false, ErrInvalidPromo
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.promo {
		return false, nil
	}
	c.promo = true
	return true, nil
}

// Contains reports whether bookID is in the cart.
func (c *Cart) Contains(bookID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[bookID]
	return ok
}

// Lines returns copies of the cart lines in the order they were added.
func (c *Cart) Lines() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines()
}

func (c *Cart) lines() []Item {
	out := make([]Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

// PromoApplied reports whether the promo code is in effect.
func (c *Cart) PromoApplied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promo
}

// Restore replaces the content of the cart with previously saved lines.
// Lines that no longer validate are dropped.
func (c *Cart) Restore(lines []Item, promo bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*Item, len(lines))
	c.order = nil
	for _, l := range lines {
		if err := c.validLine(l); err != nil {
			log.Printf("[Cart] %s: dropping saved line %s: %v", c.id, l.BookID, err)
			continue
		}
		if _, dup := c.items[l.BookID]; dup {
			continue
		}
		line := l
		c.items[l.BookID] = &line
		c.order = append(c.order, l.BookID)
	}
	c.promo = promo
}

func (c *Cart) validLine(l Item) error {
	if strings.TrimSpace(l.BookID) == "" || strings.TrimSpace(l.Name) == "" {
		return ErrInvalidItem
	}
	if l.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	if l.Quantity < MinQuantity || l.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if c.variant == Borrow && (l.BorrowDays < MinBorrowDays || l.BorrowDays > MaxBorrowDays) {
		return ErrInvalidBorrowDays
	}
	return nil
}

// Totals prices the current content of the cart: the subtotal after any
// promo, plus the online and delivery fees.
func (c *Cart) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals()
}

func (c *Cart) totals() Totals {
	t := Totals{
		Subtotal:    decimal.Zero,
		Discount:    decimal.Zero,
		OnlineFee:   c.cfg.OnlineFee,
		DeliveryFee: c.cfg.DeliveryFee,
	}
	for _, id := range c.order {
		item := c.items[id]
		t.Subtotal = t.Subtotal.Add(item.LineTotal())
		t.ItemCount += item.Quantity
	}
	if c.promo {
		t.PromoApplied = true
		t.Discount = t.Subtotal.Mul(c.cfg.PromoPercent).Div(decimal.NewFromInt(100))
		t.Subtotal = t.Subtotal.Sub(t.Discount)
	}
	t.Total = t.Subtotal.Add(t.OnlineFee).Add(t.DeliveryFee)
	return t
}

// Snapshot is a consistent copy of a cart.
type Snapshot struct {
	ID      string  `json:"id"`
	Variant Variant `json:"variant"`
	Items   []Item  `json:"items"`
	Totals  Totals  `json:"totals"`
}

// Snapshot returns the lines and totals read under one lock.
func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{ID: c.id, Variant: c.variant, Items: c.lines(), Totals: c.totals()}
}
