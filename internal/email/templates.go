package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/example/bookshop/internal/domain/cart"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// BuildReceiptBody builds the HTML body of a checkout receipt. Titles and
// names are escaped.
func BuildReceiptBody(name string, e cart.CheckedOut) string {
	borrow := e.Variant == cart.Borrow

	var rows strings.Builder
	for _, item := range e.Items {
		title := item.Name
		if title == "" {
			title = item.BookID
		}
		detail := fmt.Sprintf("%d", item.Quantity)
		if borrow {
			detail = fmt.Sprintf("%d days", item.BorrowDays)
		}
		fmt.Fprintf(&rows,
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			html.EscapeString(title),
			detail,
			money(item.UnitPrice),
			money(item.LineTotal()),
		)
	}

	heading, column := "Thank you for your purchase", "Qty"
	if borrow {
		heading, column = "Enjoy your borrowed books", "Period"
	}

	var summary strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&summary, `<tr><td style="padding: 4px 12px; color: #666;">%s</td><td style="padding: 4px 12px; text-align: right;">%s</td></tr>`, label, value)
	}
	line("Subtotal", money(e.Totals.Subtotal))
	if e.Totals.PromoApplied {
		line("Promo discount", "-"+money(e.Totals.Discount))
	}
	line("Online fee", money(e.Totals.OnlineFee))
	line("Delivery", money(e.Totals.DeliveryFee))

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #5b4636; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hello %s,</p>
		<p>Here is the receipt for the checkout of %s on %s.</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Book</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">%s</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Line</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<table style="margin-left: auto;">%s</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #5b4636; margin-left: 10px;">%s</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This message was sent automatically. No payment has been taken.
		</p>
	</div>
</body>
</html>`,
		heading,
		html.EscapeString(name),
		html.EscapeString(e.CartID),
		e.CheckedOutAt.Format("2006-01-02 15:04 MST"),
		column,
		rows.String(),
		summary.String(),
		money(e.Totals.Total),
	)
}
