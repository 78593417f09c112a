package main

import (
	"errors"
	"fmt"

	"github.com/example/bookshop/internal/domain/user"
	"github.com/spf13/cobra"
)

func newRegisterCmd(c *cli) *cobra.Command {
	var reg user.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd.InOrStdin(), cmd.OutOrStdout(), "Confirm password: ")
			if err != nil {
				return err
			}
			if pw != confirm {
				return errors.New("passwords do not match")
			}
			reg.Password = pw

			u, err := c.app.users.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run `bookshop login %s` to sign in.\n", u.Username, u.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Username, "username", "", "username (3-20 letters, digits or _)")
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			u, err := c.app.users.Authenticate(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}

			if c.app.session.IsLoggedIn() && c.app.session.UserID() != u.ID {
				c.app.signOut()
			}
			c.app.session.Login(u.ID, u.Username)
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s.\n", u.FullName)
			return nil
		},
	}
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.app.session.IsLoggedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			c.app.signOut()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.app.userID()
			if err != nil {
				return err
			}
			u, err := c.app.users.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), u.Profile())
			return nil
		},
	}
}

func newPasswdCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.app.userID(); err != nil {
				return err
			}
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			current, err := readPassword(in, out, "Current password: ")
			if err != nil {
				return err
			}
			next, err := readPassword(in, out, "New password: ")
			if err != nil {
				return err
			}
			if err := c.app.users.ChangePassword(cmd.Context(), c.app.session.Username(), current, next); err != nil {
				return err
			}
			fmt.Fprintln(out, "Password changed.")
			return nil
		},
	}
}

func newProfileCmd(c *cli) *cobra.Command {
	var (
		name, location, image string
		rating                float64
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.app.userID()
			if err != nil {
				return err
			}
			var upd user.ProfileUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				upd.FullName = &name
			}
			if flags.Changed("location") {
				upd.Location = &location
			}
			if flags.Changed("image") {
				upd.ImagePath = &image
			}
			if flags.Changed("rating") {
				upd.Rating = &rating
			}
			u, err := c.app.users.UpdateProfile(cmd.Context(), id, upd)
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), u.Profile())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&image, "image", "", "profile image path")
	cmd.Flags().Float64Var(&rating, "rating", 0, "seller rating")
	return cmd
}
