package main

import (
	"fmt"

	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/spf13/cobra"
)

func newCartCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage your purchase and borrow carts",
		// Cart edits live in the session until checkout.
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.app.saveCarts()
		},
	}
	cmd.AddCommand(
		newCartShowCmd(c),
		newCartAddCmd(c),
		newCartQtyCmd(c),
		newCartDaysCmd(c),
		newCartRemoveCmd(c),
		newCartClearCmd(c),
		newCartPromoCmd(c),
		newCartCheckoutCmd(c),
	)
	return cmd
}

func variantFlag(cmd *cobra.Command, v *string) {
	cmd.Flags().StringVar(v, "variant", string(cart.Purchase), "purchase or borrow")
}

func parseVariant(s string) (cart.Variant, error) {
	v := cart.Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown cart %q: use purchase or borrow", s)
	}
	return v, nil
}

func newCartShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show both carts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, v := range variants {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printCart(out, c.app.commands.Cart(userID, v))
			}
			return nil
		},
	}
}

func newCartAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add [id]",
		Short: "Add a book to the cart matching its listing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			id, err := bookArg(c, args)
			if err != nil {
				return err
			}
			outcome, err := c.app.commands.AddToCart(cmd.Context(), command.AddToCart{UserID: userID, BookID: id})
			if err != nil {
				return err
			}
			v, _ := c.app.cartHolding(userID, id)
			switch outcome {
			case cart.AtLimit:
				fmt.Fprintf(cmd.OutOrStdout(), "Already at the maximum of %d copies.\n", cart.MaxQuantity)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s in %s cart.\n", outcome, id, v)
			}
			return nil
		},
	}
}

func newCartQtyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "qty <id> <quantity>",
		Short: "Set the copies of a book in the purchase cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			n, err := parseCount("quantity", args[1])
			if err != nil {
				return err
			}
			if err := c.app.commands.SetQuantity(cmd.Context(), command.SetQuantity{UserID: userID, BookID: args[0], Quantity: n}); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), c.app.commands.Cart(userID, cart.Purchase))
			return nil
		},
	}
}

func newCartDaysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "days <id> <days>",
		Short: "Set the borrow period of a book in the borrow cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			n, err := parseCount("days", args[1])
			if err != nil {
				return err
			}
			if err := c.app.commands.SetBorrowDays(cmd.Context(), command.SetBorrowDays{UserID: userID, BookID: args[0], Days: n}); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), c.app.commands.Cart(userID, cart.Borrow))
			return nil
		},
	}
}

func newCartRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a book from whichever cart holds it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			v, ok := c.app.cartHolding(userID, args[0])
			if !ok {
				v = cart.Purchase
			}
			if err := c.app.commands.RemoveFromCart(cmd.Context(), command.RemoveFromCart{UserID: userID, BookID: args[0], Variant: v}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s cart.\n", args[0], v)
			return nil
		},
	}
}

func newCartClearCmd(c *cli) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty a cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			v, err := parseVariant(variant)
			if err != nil {
				return err
			}
			if err := c.app.commands.ClearCart(cmd.Context(), command.ClearCart{UserID: userID, Variant: v}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s cart.\n", v)
			return nil
		},
	}
	variantFlag(cmd, &variant)
	return cmd
}

func newCartPromoCmd(c *cli) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "promo <code>",
		Short: "Apply a promo code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			v, err := parseVariant(variant)
			if err != nil {
				return err
			}
			changed, err := c.app.commands.ApplyPromo(cmd.Context(), command.ApplyPromo{UserID: userID, Variant: v, Code: args[0]})
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "Promo already applied.")
			}
			printCart(cmd.OutOrStdout(), c.app.commands.Cart(userID, v))
			return nil
		},
	}
	variantFlag(cmd, &variant)
	return cmd
}

func newCartCheckoutCmd(c *cli) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Buy or borrow everything in a cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := c.app.userID()
			if err != nil {
				return err
			}
			v, err := parseVariant(variant)
			if err != nil {
				return err
			}
			r, err := c.app.commands.Checkout(cmd.Context(), command.Checkout{UserID: userID, Variant: v})
			if err != nil {
				return err
			}
			printReceipt(cmd.OutOrStdout(), r)
			return nil
		},
	}
	variantFlag(cmd, &variant)
	return cmd
}
