// Command bookshop is the terminal client of the shop: it browses the
// catalog, lists books for sale or lending and checks out carts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cli holds the app opened for the running command.
type cli struct {
	app *app
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.close()
	c.app = nil
	return err
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "bookshop",
		Short:         "Buy, sell and borrow books",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	root.AddCommand(
		newRegisterCmd(c),
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newPasswdCmd(c),
		newProfileCmd(c),
		newBooksCmd(c),
		newViewCmd(c),
		newCartCmd(c),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}
