package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/bookshop/internal/catalog"
	"github.com/example/bookshop/internal/command"
	"github.com/example/bookshop/internal/config"
	"github.com/example/bookshop/internal/domain/book"
	"github.com/example/bookshop/internal/domain/cart"
	"github.com/example/bookshop/internal/domain/user"
	"github.com/example/bookshop/internal/query"
	"github.com/example/bookshop/internal/session"
	"golang.org/x/term"
)

var errNotLoggedIn = errors.New("not logged in: run `bookshop login <username>` first")

var variants = []cart.Variant{cart.Purchase, cart.Borrow}

// app is one run of the CLI: the catalog, the user's session and the carts
// restored from it.
type app struct {
	cfg      *config.Config
	backends *config.Backends
	books    *book.Service
	users    *user.Service
	carts    *cart.Registry
	commands *command.Handler
	queries  *query.Handler
	session  *session.Manager
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// The CLI keeps its catalog between runs.
	if cfg.CatalogBackend == config.BackendMemory {
		cfg.CatalogBackend = config.BackendSQLite
	}

	backends, err := cfg.Open(ctx)
	if err != nil {
		return nil, err
	}

	path, err := cfg.SessionPath()
	if err != nil {
		backends.Close()
		return nil, err
	}
	fb, err := session.NewFileBackend(path)
	if err != nil {
		backends.Close()
		return nil, err
	}

	repo := catalog.NewRepository(backends.Documents)
	a := &app{
		cfg:      cfg,
		backends: backends,
		books:    book.NewService(repo, backends.Events, nil),
		users:    user.NewService(backends.Documents, backends.Events),
		carts:    cart.NewRegistry(cfg.Cart),
		queries:  query.NewHandler(repo, cfg.PageSize),
		session:  session.Open(fb),
	}
	a.commands = command.NewHandler(a.books, a.users, a.carts, backends.Events)

	if a.session.IsLoggedIn() {
		for _, v := range variants {
			a.session.RestoreCart(a.carts.Cart(a.session.UserID(), v))
		}
	}
	return a, nil
}

func (a *app) close() error {
	return errors.Join(a.session.Close(), a.backends.Close())
}

// userID returns the logged in user.
func (a *app) userID() (string, error) {
	if !a.session.IsLoggedIn() {
		return "", errNotLoggedIn
	}
	return a.session.UserID(), nil
}

// saveCarts writes both carts of the logged in user to the session.
func (a *app) saveCarts() {
	if !a.session.IsLoggedIn() {
		return
	}
	for _, v := range variants {
		a.session.SaveCart(a.carts.Cart(a.session.UserID(), v))
	}
}

// signOut forgets the logged in user's carts and clears the session.
func (a *app) signOut() {
	a.carts.Drop(a.session.UserID())
	a.session.Logout()
}

// cartHolding returns the variant of the cart that contains bookID.
func (a *app) cartHolding(userID, bookID string) (cart.Variant, bool) {
	for _, v := range variants {
		if a.carts.Cart(userID, v).Contains(bookID) {
			return v, true
		}
	}
	return "", false
}

// readPassword prompts for a password, masking it on a terminal.
func readPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(pw)), nil
	}

	line, err := readLine(in)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)
	return strings.TrimSpace(line), nil
}

// readLine reads up to a newline without buffering past it, so successive
// prompts can share one reader.
func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
