package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/query"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func availability(b *book.Book) string {
	switch {
	case b.ListingType == book.ListingSale:
		return "for sale"
	case b.Available():
		return "to borrow"
	default:
		return "borrowed"
	}
}

func printBooks(w io.Writer, books []*book.Book) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tPRICE\tRATING\tSTATUS")
	for _, b := range books {
		price := money(b.CurrentPrice)
		if b.Discounted() {
			price = fmt.Sprintf("%s (-%s%%)", price, b.DiscountPercent.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n", b.ID, b.Title, b.Author, price, b.Rating, availability(b))
	}
	tw.Flush()
}

func printPage(w io.Writer, p *query.Page) {
	if p.Total == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	if len(p.Books) == 0 {
		fmt.Fprintf(w, "Page %d is past the end, there are %d pages.\n", p.Page+1, p.PageCount)
		return
	}
	printBooks(w, p.Books)
	lo, hi := query.PriceRange(p.Books)
	fmt.Fprintf(w, "\nPage %d of %d, %d books, prices %s to %s\n", p.Page+1, p.PageCount, p.Total, money(lo), money(hi))
}

func printBook(w io.Writer, b *book.Book) {
	fmt.Fprintf(w, "%s\n", b.Describe())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", b.ID)
	fmt.Fprintf(tw, "Publisher:\t%s\n", b.Publisher)
	fmt.Fprintf(tw, "Published:\t%s\n", b.PublicationDate)
	fmt.Fprintf(tw, "Language:\t%s\n", b.Language)
	if b.ISBN != "" {
		fmt.Fprintf(tw, "ISBN:\t%s\n", b.ISBN)
	}
	if b.PageCount > 0 {
		fmt.Fprintf(tw, "Pages:\t%d\n", b.PageCount)
	}
	fmt.Fprintf(tw, "Categories:\t%s\n", strings.Join(b.Categories, ", "))
	fmt.Fprintf(tw, "Price:\t%s (was %s)\n", money(b.CurrentPrice), money(b.OriginalPrice))
	fmt.Fprintf(tw, "Status:\t%s\n", availability(b))
	if b.ReturnDate != nil {
		fmt.Fprintf(tw, "Due back:\t%s\n", b.ReturnDate.Format("2006-01-02"))
	}
	fmt.Fprintf(tw, "Rating:\t%.1f (%d reviews)\n", b.Rating, b.ReviewCount)
	tw.Flush()

	if b.Description != "" {
		fmt.Fprintf(w, "\n%s\n", b.Description)
	}
	for _, r := range b.Reviews {
		fmt.Fprintf(w, "\n  %.0f/5 on %s: %s\n", r.Rating, r.Date.Format("2006-01-02"), r.Comment)
	}
}

func printProfile(w io.Writer, p user.Profile) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Username:\t%s\n", p.Username)
	fmt.Fprintf(tw, "Name:\t%s\n", p.FullName)
	fmt.Fprintf(tw, "Email:\t%s\n", p.Email)
	if p.Location != "" {
		fmt.Fprintf(tw, "Location:\t%s\n", p.Location)
	}
	fmt.Fprintf(tw, "Member since:\t%s\n", p.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(tw, "Listed:\t%d books\n", len(p.Uploaded))
	fmt.Fprintf(tw, "Borrowed:\t%d books\n", len(p.Borrowed))
	fmt.Fprintf(tw, "Reviewed:\t%d books\n", len(p.Reviewed))
	tw.Flush()
}

func printCart(w io.Writer, s cart.Snapshot) {
	fmt.Fprintf(w, "%s cart\n", strings.ToUpper(string(s.Variant[:1]))+string(s.Variant[1:]))
	if len(s.Items) == 0 {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if s.Variant == cart.Borrow {
		fmt.Fprintln(tw, "  BOOK\tTITLE\tPRICE\tDAYS")
		for _, it := range s.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", it.BookID, it.Name, money(it.UnitPrice), it.BorrowDays)
		}
	} else {
		fmt.Fprintln(tw, "  BOOK\tTITLE\tPRICE\tQTY\tLINE")
		for _, it := range s.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\n", it.BookID, it.Name, money(it.UnitPrice), it.Quantity, money(it.LineTotal()))
		}
	}
	tw.Flush()
	printTotals(w, s.Totals)
}

func printTotals(w io.Writer, t cart.Totals) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "  Subtotal:\t%s\t\n", money(t.Subtotal))
	if t.PromoApplied {
		fmt.Fprintf(tw, "  Promo:\t-%s\t\n", money(t.Discount))
	}
	fmt.Fprintf(tw, "  Online fee:\t%s\t\n", money(t.OnlineFee))
	fmt.Fprintf(tw, "  Delivery:\t%s\t\n", money(t.DeliveryFee))
	fmt.Fprintf(tw, "  Total:\t%s\t\n", money(t.Total))
	tw.Flush()
}

func printReceipt(w io.Writer, r *command.Receipt) {
	verb := "Purchased"
	if r.Variant == cart.Borrow {
		verb = "Borrowed"
	}
	fmt.Fprintf(w, "%s %d books on %s\n", verb, r.Totals.ItemCount, r.CheckedOutAt.Format("2006-01-02 15:04"))
	for _, it := range r.Items {
		fmt.Fprintf(w, "  %s\n", it.Name)
	}
	printTotals(w, r.Totals)
}
