package cart

import (
	"strconv"
	"sync"
	"testing"

	"github.com/example/bookshop/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newPurchaseCart() *Cart {
	return New("cart-test", Purchase, DefaultConfig())
}

// ============================================
// Add Item Tests
// ============================================

func TestCart_AddItem_New(t *testing.T) {
	c := newPurchaseCart()

	outcome, err := c.AddItem("b1", "Dracula", dec("450"), "covers/dracula.jpg")

	require.NoError(t, err)
	assert.Equal(t, Added, outcome)
	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Zero(t, lines[0].BorrowDays)
	assert.Equal(t, "covers/dracula.jpg", lines[0].ImageRef)
}

func TestCart_AddItem_IncrementsPurchase(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("450"), "")
	require.NoError(t, err)

	outcome, err := c.AddItem("b1", "Dracula", dec("450"), "")

	require.NoError(t, err)
	assert.Equal(t, Incremented, outcome)
	assert.Equal(t, 2, c.Lines()[0].Quantity)
	assert.Len(t, c.Lines(), 1)
}

func TestCart_AddItem_NeverExceedsCap(t *testing.T) {
	c := newPurchaseCart()

	var last AddOutcome
	for i := 0; i < 150; i++ {
		outcome, err := c.AddItem("b1", "Dracula", dec("1"), "")
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Lines()[0].Quantity, MaxQuantity)
		last = outcome
	}

	assert.Equal(t, AtLimit, last)
	assert.Equal(t, MaxQuantity, c.Lines()[0].Quantity)
	assert.True(t, dec("99").Add(dec("118")).Equal(c.Totals().Total))
}

func TestCart_AddItem_BorrowRejectsDuplicate(t *testing.T) {
	c := New("cart-borrow", Borrow, DefaultConfig())

	outcome, err := c.AddItem("b1", "Dracula", dec("20"), "")
	require.NoError(t, err)
	assert.Equal(t, Added, outcome)
	assert.Equal(t, DefaultBorrowDays, c.Lines()[0].BorrowDays)

	_, err = c.AddItem("b1", "Dracula", dec("20"), "")
	assert.ErrorIs(t, err, ErrAlreadyInCart)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, c.Lines()[0].Quantity)
}

func TestCart_AddItem_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		title   string
		price   string
		wantErr error
	}{
		{"empty id", "", "Dracula", "10", ErrInvalidItem},
		{"blank name", "b1", "  ", "10", ErrInvalidItem},
		{"negative price", "b1", "Dracula", "-1", ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newPurchaseCart()
			_, err := c.AddItem(tt.id, tt.title, dec(tt.price), "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			assert.Empty(t, c.Lines())
		})
	}
}

func TestCart_AddItem_FreeBook(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Public domain", decimal.Zero, "")
	require.NoError(t, err)
}

// ============================================
// Quantity / Borrow Days Tests
// ============================================

func TestCart_SetQuantity(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("10"), "")
	require.NoError(t, err)

	require.NoError(t, c.SetQuantity("b1", 5))
	assert.Equal(t, 5, c.Lines()[0].Quantity)

	for _, n := range []int{0, -3, 100} {
		err := c.SetQuantity("b1", n)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, 5, c.Lines()[0].Quantity)
	}

	assert.ErrorIs(t, c.SetQuantity("missing", 2), ErrItemNotFound)
}

func TestCart_SetBorrowDays(t *testing.T) {
	c := New("cart-borrow", Borrow, DefaultConfig())
	_, err := c.AddItem("b1", "Dracula", dec("10"), "")
	require.NoError(t, err)

	require.NoError(t, c.SetBorrowDays("b1", 90))
	assert.Equal(t, 90, c.Lines()[0].BorrowDays)

	assert.ErrorIs(t, c.SetBorrowDays("b1", 91), ErrInvalidBorrowDays)
	assert.ErrorIs(t, c.SetBorrowDays("b1", 0), ErrInvalidBorrowDays)
	assert.Equal(t, 90, c.Lines()[0].BorrowDays)

	assert.ErrorIs(t, c.SetQuantity("b1", 2), ErrWrongVariant)
	assert.ErrorIs(t, newPurchaseCart().SetBorrowDays("b1", 3), ErrWrongVariant)
}

// ============================================
// Remove / Clear Tests
// ============================================

func TestCart_RemoveItem(t *testing.T) {
	c := newPurchaseCart()
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := c.AddItem(id, "Book "+id, dec("10"), "")
		require.NoError(t, err)
	}

	require.NoError(t, c.RemoveItem("b2"))
	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "b1", lines[0].BookID)
	assert.Equal(t, "b3", lines[1].BookID)

	err := c.RemoveItem("b2")
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCart_Clear(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("10"), "")
	require.NoError(t, err)
	_, err = c.ApplyPromo("bookworm")
	require.NoError(t, err)

	c.Clear()

	assert.Empty(t, c.Lines())
	assert.False(t, c.PromoApplied())
	assert.True(t, c.Totals().Subtotal.IsZero())
}

func TestCart_Settle(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("10"), "")
	require.NoError(t, err)
	_, err = c.AddItem("b2", "Emma", dec("20"), "")
	require.NoError(t, err)
	_, err = c.ApplyPromo("bookworm")
	require.NoError(t, err)
	settled := c.Lines()

	// Changes made while the checkout was running.
	require.NoError(t, c.SetQuantity("b2", 3))
	_, err = c.AddItem("b3", "Carmilla", dec("30"), "")
	require.NoError(t, err)

	c.Settle(settled)

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "b2", lines[0].BookID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "b3", lines[1].BookID)
	assert.True(t, c.PromoApplied())

	c.Settle(lines)

	assert.Empty(t, c.Lines())
	assert.False(t, c.PromoApplied())
}

// ============================================
// Totals / Promo Tests
// ============================================

func TestCart_Totals(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("450"), "")
	require.NoError(t, err)
	_, err = c.AddItem("b2", "Emma", dec("120.50"), "")
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity("b2", 2))

	totals := c.Totals()

	assert.True(t, dec("691").Equal(totals.Subtotal), totals.Subtotal.String())
	assert.True(t, dec("58").Equal(totals.OnlineFee))
	assert.True(t, dec("60").Equal(totals.DeliveryFee))
	assert.True(t, dec("809").Equal(totals.Total), totals.Total.String())
	assert.Equal(t, 3, totals.ItemCount)
}

func TestCart_Totals_EmptyCartStillCarriesFees(t *testing.T) {
	totals := newPurchaseCart().Totals()

	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, dec("58").Equal(totals.OnlineFee))
	assert.True(t, dec("60").Equal(totals.DeliveryFee))
	assert.True(t, dec("118").Equal(totals.Total), totals.Total.String())
}

func TestCart_Totals_ConfigurableFees(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnlineFee = dec("5")
	cfg.DeliveryFee = decimal.Zero
	c := New("cart-x", Purchase, cfg)
	_, err := c.AddItem("b1", "Dracula", dec("100"), "")
	require.NoError(t, err)

	assert.True(t, dec("105").Equal(c.Totals().Total))
}

func TestCart_ApplyPromo(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("500"), "")
	require.NoError(t, err)
	before := c.Totals().Subtotal

	applied, err := c.ApplyPromo("BookWorm")
	require.NoError(t, err)
	assert.True(t, applied)
	once := c.Totals()
	assert.True(t, before.Mul(dec("0.9")).Equal(once.Subtotal))
	assert.True(t, dec("50").Equal(once.Discount))

	applied, err = c.ApplyPromo("BOOKWORM")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, once.Subtotal.Equal(c.Totals().Subtotal))
}

func TestCart_ApplyPromo_Invalid(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("500"), "")
	require.NoError(t, err)

	_, err = c.ApplyPromo("FREEBOOKS")

	assert.ErrorIs(t, err, ErrInvalidPromo)
	assert.False(t, c.PromoApplied())
	assert.True(t, dec("500").Equal(c.Totals().Subtotal))
}

func TestCart_TotalsFollowEveryMutation(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("100"), "")
	require.NoError(t, err)
	assert.True(t, dec("218").Equal(c.Totals().Total))

	require.NoError(t, c.SetQuantity("b1", 3))
	assert.True(t, dec("418").Equal(c.Totals().Total))

	require.NoError(t, c.RemoveItem("b1"))
	assert.True(t, dec("118").Equal(c.Totals().Total))
}

// ============================================
// Restore Tests
// ============================================

func TestCart_Restore(t *testing.T) {
	c := newPurchaseCart()
	_, err := c.AddItem("b1", "Dracula", dec("100"), "")
	require.NoError(t, err)
	require.NoError(t, c.SetQuantity("b1", 4))
	_, err = c.ApplyPromo("bookworm")
	require.NoError(t, err)

	restored := newPurchaseCart()
	lines := append(c.Lines(),
		Item{BookID: "bad", Name: "Broken", UnitPrice: dec("1"), Quantity: 500},
		Item{BookID: "b1", Name: "Dup", UnitPrice: dec("1"), Quantity: 1},
	)
	restored.Restore(lines, c.PromoApplied())

	assert.Equal(t, c.Lines(), restored.Lines())
	assert.True(t, c.Totals().Total.Equal(restored.Totals().Total))
}

// ============================================
// Registry Tests
// ============================================

func TestGetCartID(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		expectedID string
	}{
		{"normal user ID", "user-123", "cart-user-123"},
		{"UUID user ID", "550e8400-e29b-41d4-a716-446655440000", "cart-550e8400-e29b-41d4-a716-446655440000"},
		{"empty user ID", "", "cart-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedID, GetCartID(tt.userID))
		})
	}
}

func TestRegistry_OneCartPerUserAndVariant(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	a := r.Cart("u1", Purchase)
	assert.Same(t, a, r.Cart("u1", Purchase))
	assert.NotSame(t, a, r.Cart("u1", Borrow))
	assert.NotSame(t, a, r.Cart("u2", Purchase))
	assert.Equal(t, Borrow, r.Cart("u1", Borrow).Variant())
	assert.Equal(t, "cart-u1-purchase", a.ID())
}

func TestRegistry_HoldsBook(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	_, err := r.Cart("u1", Borrow).AddItem("b1", "Dracula", dec("10"), "")
	require.NoError(t, err)

	assert.True(t, r.HoldsBook("b1"))
	assert.False(t, r.HoldsBook("b2"))

	r.Drop("u1")
	assert.False(t, r.HoldsBook("b1"))
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := r.Cart("u1", Purchase)
			_, err := c.AddItem("b"+strconv.Itoa(i%5), "Book", dec("1"), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Cart("u1", Purchase).Totals().ItemCount)
}
