package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/example/bookshop/internal/domain/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkedOut(variant cart.Variant) cart.CheckedOut {
	return cart.CheckedOut{
		CartID:  "cart-bob-" + string(variant),
		UserID:  "bob",
		Variant: variant,
		Items: []cart.Item{
			{BookID: "b-1", Name: "Dracula <1st ed>", UnitPrice: decimal.NewFromInt(100), Quantity: 2, BorrowDays: 14},
		},
		Totals: cart.Totals{
			Subtotal:     decimal.NewFromInt(180),
			Discount:     decimal.NewFromInt(20),
			OnlineFee:    decimal.NewFromInt(58),
			DeliveryFee:  decimal.NewFromInt(60),
			Total:        decimal.NewFromInt(298),
			PromoApplied: true,
			ItemCount:    2,
		},
		CheckedOutAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildReceiptBody(t *testing.T) {
	t.Run("purchase", func(t *testing.T) {
		body := BuildReceiptBody("Bob", checkedOut(cart.Purchase))
		assert.Contains(t, body, "Thank you for your purchase")
		assert.Contains(t, body, "Dracula &lt;1st ed&gt;")
		assert.Contains(t, body, "200.00")
		assert.Contains(t, body, "-20.00")
		assert.Contains(t, body, "298.00")
	})

	t.Run("borrow", func(t *testing.T) {
		body := BuildReceiptBody("Bob", checkedOut(cart.Borrow))
		assert.Contains(t, body, "Enjoy your borrowed books")
		assert.Contains(t, body, "14 days")
	})

	t.Run("name is escaped", func(t *testing.T) {
		body := BuildReceiptBody("<script>", checkedOut(cart.Purchase))
		assert.NotContains(t, body, "<script>")
	})
}

func TestService_SendReceipt(t *testing.T) {
	svc := NewService("mail.local", "25", "shop@example.com")

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, svc.SendReceipt("bob@example.com", "Bob", checkedOut(cart.Purchase)))
	assert.Equal(t, "mail.local:25", gotAddr)
	assert.Equal(t, []string{"bob@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: shop@example.com\r\nTo: bob@example.com\r\n"))
	assert.Contains(t, gotMsg, "Subject: Your bookshop purchase receipt (cart-bob-purchase-20240301-120000)")

	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	err := svc.SendReceipt("bob@example.com", "Bob", checkedOut(cart.Purchase))
	assert.ErrorContains(t, err, "connection refused")
}
