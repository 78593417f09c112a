package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/bookshop/internal/domain/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "nested", "session.json"))
	require.NoError(t, err)
	return b
}

// failingBackend never stores anything.
type failingBackend struct {
	saves int
}

func (f *failingBackend) Load() (State, bool, error) {
	return State{}, false, nil
}

func (f *failingBackend) Save(State) error {
	f.saves++
	return errors.New("disk full")
}

func (f *failingBackend) Remove() error {
	return nil
}

// ============================================
// Lifecycle Tests
// ============================================

func TestManager_DefaultsWhenNothingSaved(t *testing.T) {
	m := Open(newFileBackend(t))

	assert.False(t, m.IsLoggedIn())
	assert.Empty(t, m.Username())
	assert.Equal(t, ViewAll, m.View())
	assert.Empty(t, m.CurrentBookID())
}

func TestManager_LoginSurvivesRestart(t *testing.T) {
	backend := newFileBackend(t)

	m := Open(backend)
	m.Login("user-1", "alice")
	m.SetCurrentBookID("book-9")
	m.SetView(ViewByCategory)
	m.SetCategory("Horror")

	reloaded := Open(backend)
	assert.True(t, reloaded.IsLoggedIn())
	assert.Equal(t, "alice", reloaded.Username())
	assert.Equal(t, "user-1", reloaded.UserID())
	assert.Equal(t, "book-9", reloaded.CurrentBookID())
	assert.Equal(t, ViewByCategory, reloaded.View())
	assert.Equal(t, "Horror", reloaded.Category())
}

func TestManager_LogoutRemovesRecord(t *testing.T) {
	backend := newFileBackend(t)
	m := Open(backend)
	m.Login("user-1", "alice")
	m.SetPublisher("Penguin")
	_, err := os.Stat(backend.Path())
	require.NoError(t, err)

	m.Logout()

	_, err = os.Stat(backend.Path())
	assert.True(t, os.IsNotExist(err))
	assert.False(t, m.IsLoggedIn())
	assert.Empty(t, m.Username())
	assert.Empty(t, m.Publisher())

	require.NoError(t, m.Close())
	_, err = os.Stat(backend.Path())
	assert.True(t, os.IsNotExist(err))

	fresh := Open(backend)
	assert.False(t, fresh.IsLoggedIn())
	assert.Equal(t, ViewAll, fresh.View())
}

func TestManager_CorruptFileTreatedAsAbsent(t *testing.T) {
	backend := newFileBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(backend.Path()), 0o700))
	require.NoError(t, os.WriteFile(backend.Path(), []byte("{not json"), 0o600))

	m := Open(backend)

	assert.False(t, m.IsLoggedIn())
	m.Login("user-1", "alice")
	assert.True(t, Open(backend).IsLoggedIn())
}

func TestManager_FieldSettersPersist(t *testing.T) {
	backend := newFileBackend(t)

	m := Open(backend)
	m.SetUsername("carol")
	m.SetLoggedIn(true)
	m.SetPublisher("Penguin")

	reloaded := Open(backend)
	assert.Equal(t, "carol", reloaded.Username())
	assert.True(t, reloaded.IsLoggedIn())
	assert.Equal(t, "Penguin", reloaded.Publisher())

	reloaded.SetLoggedIn(false)
	assert.False(t, Open(backend).IsLoggedIn())
}

func TestManager_UnknownViewFallsBack(t *testing.T) {
	backend := newFileBackend(t)
	require.NoError(t, backend.Save(State{Username: "bob", View: "grid"}))

	m := Open(backend)
	assert.Equal(t, ViewAll, m.View())

	m.SetView("sideways")
	assert.Equal(t, ViewAll, m.View())
}

func TestManager_WriteFailureIsNotFatal(t *testing.T) {
	backend := &failingBackend{}
	m := Open(backend)

	m.Login("user-1", "alice")
	m.SetCurrentBookID("b1")

	assert.True(t, m.IsLoggedIn())
	assert.Equal(t, "b1", m.CurrentBookID())
	assert.Equal(t, 2, backend.saves)
}

func TestFileBackend_Permissions(t *testing.T) {
	backend := newFileBackend(t)
	require.NoError(t, backend.Save(State{Username: "alice", LoggedIn: true, View: ViewAll}))

	info, err := os.Stat(backend.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(backend.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.bookshop/session.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".bookshop", "session.json"), got)

	got, err = ExpandHome("/tmp/session.json")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/session.json", got)
}

// ============================================
// Cart Persistence Tests
// ============================================

func TestManager_CartSurvivesRestart(t *testing.T) {
	backend := newFileBackend(t)
	m := Open(backend)
	m.Login("user-1", "alice")

	purchase := cart.New("cart-user-1-purchase", cart.Purchase, cart.DefaultConfig())
	_, err := purchase.AddItem("b1", "Dracula", decimal.NewFromInt(450), "")
	require.NoError(t, err)
	require.NoError(t, purchase.SetQuantity("b1", 3))
	_, err = purchase.ApplyPromo("bookworm")
	require.NoError(t, err)
	m.SaveCart(purchase)

	borrow := cart.New("cart-user-1-borrow", cart.Borrow, cart.DefaultConfig())
	_, err = borrow.AddItem("b2", "Emma", decimal.NewFromInt(20), "")
	require.NoError(t, err)
	m.SaveCart(borrow)

	reloaded := Open(backend)
	restoredPurchase := cart.New("cart-user-1-purchase", cart.Purchase, cart.DefaultConfig())
	reloaded.RestoreCart(restoredPurchase)
	restoredBorrow := cart.New("cart-user-1-borrow", cart.Borrow, cart.DefaultConfig())
	reloaded.RestoreCart(restoredBorrow)

	require.Len(t, restoredPurchase.Lines(), 1)
	assert.Equal(t, 3, restoredPurchase.Lines()[0].Quantity)
	assert.True(t, restoredPurchase.PromoApplied())
	assert.True(t, purchase.Totals().Total.Equal(restoredPurchase.Totals().Total))

	require.Len(t, restoredBorrow.Lines(), 1)
	assert.Equal(t, cart.DefaultBorrowDays, restoredBorrow.Lines()[0].BorrowDays)
	assert.False(t, restoredBorrow.PromoApplied())
}

func TestManager_SaveCartReplacesVariant(t *testing.T) {
	m := Open(newFileBackend(t))
	c := cart.New("c", cart.Purchase, cart.DefaultConfig())
	_, err := c.AddItem("b1", "Dracula", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	m.SaveCart(c)

	c.Clear()
	m.SaveCart(c)

	st := m.State()
	require.Len(t, st.Carts, 1)
	assert.Empty(t, st.Carts[0].Items)
}

func TestManager_StateIsACopy(t *testing.T) {
	m := Open(&failingBackend{})
	c := cart.New("c", cart.Purchase, cart.DefaultConfig())
	_, err := c.AddItem("b1", "Dracula", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	m.SaveCart(c)

	st := m.State()
	st.Carts[0].Items[0].Quantity = 50

	assert.Equal(t, 1, m.State().Carts[0].Items[0].Quantity)
}
