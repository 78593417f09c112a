package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/query"
	"github.com/example/bookshop/internal/session"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newBooksCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Browse and manage books",
	}
	cmd.AddCommand(
		newSearchCmd(c),
		newFeaturedCmd(c),
		newShowCmd(c),
		newSellCmd(c),
		newEditCmd(c),
		newDeleteCmd(c),
		newFeatureCmd(c),
		newReviewCmd(c),
		newReturnCmd(c),
		newMineCmd(c),
	)
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	var (
		p         query.Params
		avail     string
		sortBy    string
		ascending bool
		page      int
	)
	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search, filter and sort the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				p.SearchTerm = args[0]
			}
			p.Availability = query.ParseAvailability(avail)
			p.SortBy = query.ParseSortKey(sortBy)
			if cmd.Flags().Changed("asc") {
				p.Ascending = &ascending
			}
			p.Page = pageIndex(page)
			result, err := c.app.queries.Query(cmd.Context(), p)
			if err != nil {
				return err
			}
			printPage(cmd.OutOrStdout(), result)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Author, "author", "", "author contains")
	f.StringVar(&p.Publisher, "publisher", "", "publisher contains")
	f.StringVar(&p.Language, "language", "", "language")
	f.StringVar(&p.Category, "category", "", "category")
	f.StringVar(&p.MinPrice, "min-price", "", "lowest current price")
	f.StringVar(&p.MaxPrice, "max-price", "", "highest current price")
	f.StringVar(&p.MinRating, "min-rating", "", "lowest rating")
	f.StringVar(&p.FromDate, "from", "", "published on or after (YYYY-MM-DD)")
	f.StringVar(&p.ToDate, "to", "", "published on or before (YYYY-MM-DD)")
	f.StringVar(&avail, "availability", "", "available-now, for-purchase or for-borrow")
	f.BoolVar(&p.DiscountOnly, "discount", false, "discounted books only")
	f.StringVar(&sortBy, "sort", "", "title, author, price, rating or publication-date")
	f.BoolVar(&ascending, "asc", false, "sort ascending")
	f.IntVar(&page, "page", 1, "page number, starting at 1")
	return cmd
}

func newViewCmd(c *cli) *cobra.Command {
	var (
		category, publisher string
		page                int
	)
	cmd := &cobra.Command{
		Use:   "view [all-books|highly-rated|by-category|by-publisher]",
		Short: "Browse the catalog in a view mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.app.session
			if len(args) == 1 {
				s.SetView(session.ParseView(args[0]))
			}
			if cmd.Flags().Changed("category") {
				s.SetCategory(category)
			}
			if cmd.Flags().Changed("publisher") {
				s.SetPublisher(publisher)
			}

			out := cmd.OutOrStdout()
			switch s.View() {
			case session.ViewByCategory:
				if s.Category() == "" {
					return printFacets(cmd, "Categories", c.app.queries.Categories)
				}
				fmt.Fprintf(out, "Category: %s\n\n", s.Category())
			case session.ViewByPublisher:
				if s.Publisher() == "" {
					return printFacets(cmd, "Publishers", c.app.queries.Publishers)
				}
				fmt.Fprintf(out, "Publisher: %s\n\n", s.Publisher())
			}

			p, err := c.app.queries.View(cmd.Context(), s.View(), s.Category(), s.Publisher(), pageIndex(page))
			if err != nil {
				return err
			}
			printPage(out, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category for by-category")
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher for by-publisher")
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	return cmd
}

// pageIndex turns the one-based page shown to users into the query's
// zero-based index.
func pageIndex(page int) int {
	if page < 1 {
		return 0
	}
	return page - 1
}

func printFacets(cmd *cobra.Command, title string, list func(ctx context.Context) ([]query.Facet, error)) error {
	facets, err := list(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s:\n", title)
	for _, f := range facets {
		fmt.Fprintf(out, "  %s (%d)\n", f.Label, f.Count)
	}
	return nil
}

func newFeaturedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "featured",
		Short: "Show the featured shelf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := c.app.queries.Featured(cmd.Context())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing featured yet.")
				return nil
			}
			printBooks(cmd.OutOrStdout(), books)
			return nil
		},
	}
}

// bookArg returns the book named on the command line, or the one last shown.
func bookArg(c *cli, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if id := c.app.session.CurrentBookID(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no book given and none shown yet")
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a book and its reviews",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := bookArg(c, args)
			if err != nil {
				return err
			}
			b, err := c.app.books.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.app.session.SetCurrentBookID(b.ID)
			printBook(cmd.OutOrStdout(), b)
			return nil
		},
	}
}

// listingFlags binds the listing form to flags.
type listingFlags struct {
	listing     book.Listing
	price       string
	discount    string
	listingType string
}

func (lf *listingFlags) bind(f *pflag.FlagSet) {
	f.StringVar(&lf.listing.Title, "title", "", "title")
	f.StringVar(&lf.listing.Author, "author", "", "author")
	f.StringVar(&lf.listing.Publisher, "publisher", "", "publisher")
	f.StringVar(&lf.listing.PublicationDate, "date", "", "publication date (YYYY-MM-DD)")
	f.StringVar(&lf.listing.Language, "language", "", "language")
	f.StringVar(&lf.listing.ISBN, "isbn", "", "ISBN-10 or ISBN-13")
	f.IntVar(&lf.listing.PageCount, "pages", 0, "page count")
	f.StringVar(&lf.listing.Description, "description", "", "description")
	f.StringVar(&lf.listing.CoverRef, "cover", "", "cover image reference")
	f.StringSliceVar(&lf.listing.Categories, "category", nil, "category (repeat for up to 5)")
	f.StringVar(&lf.price, "price", "", "original price")
	f.StringVar(&lf.discount, "discount", "0", "discount percent")
	f.StringVar(&lf.listingType, "type", string(book.ListingSale), "sale or borrow")
}

// merge copies the flags the user set over base.
func (lf *listingFlags) merge(f *pflag.FlagSet, base book.Listing) (book.Listing, error) {
	l := base
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("title", func() { l.Title = lf.listing.Title })
	set("author", func() { l.Author = lf.listing.Author })
	set("publisher", func() { l.Publisher = lf.listing.Publisher })
	set("date", func() { l.PublicationDate = lf.listing.PublicationDate })
	set("language", func() { l.Language = lf.listing.Language })
	set("isbn", func() { l.ISBN = lf.listing.ISBN })
	set("pages", func() { l.PageCount = lf.listing.PageCount })
	set("description", func() { l.Description = lf.listing.Description })
	set("cover", func() { l.CoverRef = lf.listing.CoverRef })
	set("category", func() { l.Categories = lf.listing.Categories })
	set("type", func() { l.ListingType = book.ListingType(strings.ToLower(lf.listingType)) })

	if f.Changed("price") {
		p, err := decimal.NewFromString(lf.price)
		if err != nil {
			return l, fmt.Errorf("invalid price %q", lf.price)
		}
		l.Price = p
	}
	if f.Changed("discount") {
		d, err := decimal.NewFromString(lf.discount)
		if err != nil {
			return l, fmt.Errorf("invalid discount %q", lf.discount)
		}
		l.DiscountPercent = d
	}
	return l, nil
}

func listingOf(b *book.Book) book.Listing {
	return book.Listing{
		Title:           b.Title,
		Author:          b.Author,
		Publisher:       b.Publisher,
		PublicationDate: b.PublicationDate,
		Language:        b.Language,
		ISBN:            b.ISBN,
		PageCount:       b.PageCount,
		Description:     b.Description,
		CoverRef:        b.CoverRef,
		Price:           b.OriginalPrice,
		DiscountPercent: b.DiscountPercent,
		Categories:      b.Categories,
		ListingType:     b.ListingType,
	}
}

func newSellCmd(c *cli) *cobra.Command {
	var lf listingFlags
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "List a book for sale or lending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sellerID, err := c.app.userID()
			if err != nil {
				return err
			}
			l, err := lf.merge(cmd.Flags(), book.Listing{ListingType: book.ListingSale})
			if err != nil {
				return err
			}
			b, err := c.app.commands.ListBook(cmd.Context(), command.ListBook{SellerID: sellerID, Listing: l})
			if err != nil {
				return err
			}
			c.app.session.SetCurrentBookID(b.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Listed %s as %s\n", b.Describe(), b.ID)
			return nil
		},
	}
	lf.bind(cmd.Flags())
	return cmd
}

func newEditCmd(c *cli) *cobra.Command {
	var lf listingFlags
	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Change one of your listings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sellerID, err := c.app.userID()
			if err != nil {
				return err
			}
			id, err := bookArg(c, args)
			if err != nil {
				return err
			}
			current, err := c.app.books.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			l, err := lf.merge(cmd.Flags(), listingOf(current))
			if err != nil {
				return err
			}
			b, err := c.app.commands.EditBook(cmd.Context(), command.EditBook{BookID: id, SellerID: sellerID, Listing: l})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", b.Describe())
			return nil
		},
	}
	lf.bind(cmd.Flags())
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one of your listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sellerID, err := c.app.userID()
			if err != nil {
				return err
			}
			if err := c.app.commands.DeleteBook(cmd.Context(), command.DeleteBook{BookID: args[0], SellerID: sellerID}); err != nil {
				return err
			}
			if c.app.session.CurrentBookID() == args[0] {
				c.app.session.SetCurrentBookID("")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newFeatureCmd(c *cli) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "feature [id]",
		Short: "Put one of your listings on the featured shelf",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sellerID, err := c.app.userID()
			if err != nil {
				return err
			}
			id, err := bookArg(c, args)
			if err != nil {
				return err
			}
			b, err := c.app.commands.FeatureBook(cmd.Context(), command.FeatureBook{BookID: id, SellerID: sellerID, Featured: !off})
			if err != nil {
				return err
			}
			if b.Featured {
				fmt.Fprintf(cmd.OutOrStdout(), "Featured %s\n", b.Title)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Unfeatured %s\n", b.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the book from the featured shelf")
	return cmd
}

func newReviewCmd(c *cli) *cobra.Command {
	var (
		rating  float64
		comment string
	)
	cmd := &cobra.Command{
		Use:   "review [id]",
		Short: "Rate and review a book",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewerID, err := c.app.userID()
			if err != nil {
				return err
			}
			id, err := bookArg(c, args)
			if err != nil {
				return err
			}
			b, err := c.app.commands.ReviewBook(cmd.Context(), command.ReviewBook{
				BookID:     id,
				ReviewerID: reviewerID,
				Rating:     rating,
				Comment:    comment,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Thanks! %s is now rated %.1f from %d reviews.\n", b.Title, b.Rating, b.ReviewCount)
			return nil
		},
	}
	cmd.Flags().Float64Var(&rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func newReturnCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "return <id>",
		Short: "Return a borrowed book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			holderID, err := c.app.userID()
			if err != nil {
				return err
			}
			b, err := c.app.commands.ReturnBook(cmd.Context(), command.ReturnBook{BookID: args[0], HolderID: holderID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Returned %s\n", b.Title)
			return nil
		},
	}
}

func newMineCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Show your listings and the books you are borrowing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.app.userID()
			if err != nil {
				return err
			}
			listed, err := c.app.books.ListBySeller(cmd.Context(), id)
			if err != nil {
				return err
			}
			held, err := c.app.books.ListHeldBy(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listed (%d)\n", len(listed))
			if len(listed) > 0 {
				printBooks(out, listed)
			}
			fmt.Fprintf(out, "\nBorrowing (%d)\n", len(held))
			if len(held) > 0 {
				printBooks(out, held)
			}
			return nil
		},
	}
}

func parseCount(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
