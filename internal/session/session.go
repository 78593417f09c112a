// Package session keeps the state of the interactive user between runs of
// the CLI: who is logged in, what they are looking at and what is in
// their cart.
package session

import (
	"log"
	"sync"

	"github.com/example/bookshop/internal/domain/cart"
)

// View is the catalog view mode.
type View string

const (
	ViewAll         View = "all-books"
	ViewHighlyRated View = "highly-rated"
	ViewByCategory  View = "by-category"
	ViewByPublisher View = "by-publisher"
)

func (v View) Valid() bool {
	switch v {
	case ViewAll, ViewHighlyRated, ViewByCategory, ViewByPublisher:
		return true
	}
	return false
}

// ParseView accepts a view name. Unknown names select ViewAll.
func ParseView(s string) View {
	if v := View(s); v.Valid() {
		return v
	}
	return ViewAll
}

// State is the persisted session record.
type State struct {
	Username      string      `json:"username,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	LoggedIn      bool        `json:"logged_in"`
	CurrentBookID string      `json:"current_book_id,omitempty"`
	View          View        `json:"view"`
	Category      string      `json:"category,omitempty"`
	Publisher     string      `json:"publisher,omitempty"`
	Carts         []SavedCart `json:"carts,omitempty"`
}

// SavedCart is the content of one cart between runs.
type SavedCart struct {
	Variant      cart.Variant `json:"variant"`
	Items        []cart.Item  `json:"items"`
	PromoApplied bool         `json:"promo_applied,omitempty"`
}

func defaultState() State {
	return State{View: ViewAll}
}

func (s State) empty() bool {
	return !s.LoggedIn && s.Username == "" && s.UserID == "" && s.CurrentBookID == "" &&
		s.Category == "" && s.Publisher == "" && len(s.Carts) == 0 && s.View == ViewAll
}

// Backend stores the session record.
type Backend interface {
	// Load returns the saved state. ok is false when nothing is saved.
	Load() (st State, ok bool, err error)
	Save(st State) error
	Remove() error
}

// Manager owns the session state. Every mutation writes the whole record
// to the backend; write failures are logged and the next mutation tries
// again.
type Manager struct {
	backend Backend

	mu    sync.RWMutex
	state State
}

// Open loads the saved session or starts logged out.
func Open(backend Backend) *Manager {
	m := &Manager{backend: backend, state: defaultState()}
	st, ok, err := backend.Load()
	switch {
	case err != nil:
		log.Printf("[Session] ignoring saved session: %v", err)
	case ok:
		if !st.View.Valid() {
			st.View = ViewAll
		}
		m.state = st
	}
	return m
}

func (m *Manager) mutate(fn func(st *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	m.persist()
}

func (m *Manager) persist() {
	if err := m.backend.Save(m.state); err != nil {
		log.Printf("[Session] failed to save session: %v", err)
	}
}

// State returns a copy of the session record.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	st.Carts = make([]SavedCart, 0, len(m.state.Carts))
	for _, c := range m.state.Carts {
		c.Items = append([]cart.Item(nil), c.Items...)
		st.Carts = append(st.Carts, c)
	}
	return st
}

func (m *Manager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Username
}

func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.UserID
}

func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LoggedIn
}

func (m *Manager) CurrentBookID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentBookID
}

func (m *Manager) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.View
}

func (m *Manager) Category() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Category
}

func (m *Manager) Publisher() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Publisher
}

func (m *Manager) SetUsername(username string) {
	m.mutate(func(st *State) { st.Username = username })
}

func (m *Manager) SetLoggedIn(loggedIn bool) {
	m.mutate(func(st *State) { st.LoggedIn = loggedIn })
}

func (m *Manager) SetCurrentBookID(id string) {
	m.mutate(func(st *State) { st.CurrentBookID = id })
}

// SetView selects the view mode. An invalid mode selects ViewAll.
func (m *Manager) SetView(v View) {
	if !v.Valid() {
		v = ViewAll
	}
	m.mutate(func(st *State) { st.View = v })
}

func (m *Manager) SetCategory(category string) {
	m.mutate(func(st *State) { st.Category = category })
}

func (m *Manager) SetPublisher(publisher string) {
	m.mutate(func(st *State) { st.Publisher = publisher })
}

// SaveCart stores the lines of c under its variant.
func (m *Manager) SaveCart(c *cart.Cart) {
	saved := SavedCart{Variant: c.Variant(), Items: c.Lines(), PromoApplied: c.PromoApplied()}
	m.mutate(func(st *State) {
		for i := range st.Carts {
			if st.Carts[i].Variant == saved.Variant {
				st.Carts[i] = saved
				return
			}
		}
		st.Carts = append(st.Carts, saved)
	})
}

// RestoreCart loads the saved lines of c's variant into c. Nothing saved
// leaves c untouched.
func (m *Manager) RestoreCart(c *cart.Cart) {
	for _, saved := range m.State().Carts {
		if saved.Variant == c.Variant() {
			c.Restore(saved.Items, saved.PromoApplied)
			return
		}
	}
}

// Login marks username as logged in.
func (m *Manager) Login(userID, username string) {
	m.mutate(func(st *State) {
		st.UserID = userID
		st.Username = username
		st.LoggedIn = true
	})
}

// Logout clears the session and removes the saved record.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = defaultState()
	if err := m.backend.Remove(); err != nil {
		log.Printf("[Session] failed to remove session: %v", err)
	}
}

// Close writes the session a final time. A cleared session is not
// written back.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.empty() {
		return nil
	}
	return m.backend.Save(m.state)
}
