package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/client/services"
)

// fakeService plays the server: serverCart is what Fetch returns, and the
// fail flags force individual mutations to error.
type fakeService struct {
	serverCart *services.Cart

	failAdd    bool
	failUpdate bool
	failRemove bool
	failFetch  bool

	fetchCalls  int
	addCalls    int
	updateCalls int
	removeCalls int
}

var errServer = errors.New("internal error")

// Fetch hands out copies, as a real server would: the manager must never
// share item pointers with the fake's internal state.
func (f *fakeService) Fetch(ctx context.Context) (*services.Cart, error) {
	f.fetchCalls++
	if f.failFetch {
		return nil, errServer
	}
	items := make([]*services.CartItem, len(f.serverCart.Items))
	for i, it := range f.serverCart.Items {
		cp := *it
		items[i] = &cp
	}
	return cartOf(items...), nil
}

func (f *fakeService) Add(ctx context.Context, productID, quantity uint) (*services.CartItem, error) {
	f.addCalls++
	if f.failAdd {
		return nil, errServer
	}
	item := cartItem(uint(len(f.serverCart.Items))+1, productID, quantity, "20.00")
	f.serverCart = cartOf(append(f.serverCart.Items, item)...)
	return item, nil
}

func (f *fakeService) UpdateQuantity(ctx context.Context, itemID, quantity uint) error {
	f.updateCalls++
	if f.failUpdate {
		return errServer
	}
	for _, it := range f.serverCart.Items {
		if it.ID == itemID {
			it.Quantity = quantity
		}
	}
	f.serverCart = cartOf(f.serverCart.Items...)
	return nil
}

func (f *fakeService) Remove(ctx context.Context, itemID uint) error {
	f.removeCalls++
	if f.failRemove {
		return errServer
	}
	kept := []*services.CartItem{}
	for _, it := range f.serverCart.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	f.serverCart = cartOf(kept...)
	return nil
}

func cartItem(id, productID, quantity uint, price string) *services.CartItem {
	unit := decimal.RequireFromString(price)
	return &services.CartItem{
		ID:        id,
		Product:   services.Product{ID: productID, Name: "Product", InStock: true},
		Quantity:  quantity,
		UnitPrice: unit,
		Subtotal:  unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2),
	}
}

func cartOf(items ...*services.CartItem) *services.Cart {
	return derive(items)
}

func managerWith(items ...*services.CartItem) (*Manager, *fakeService) {
	svc := &fakeService{serverCart: cartOf(items...)}
	m := NewManager(svc)
	_ = m.Refresh(context.Background())
	svc.fetchCalls = 0
	return m, svc
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

func TestDeriveTotals(t *testing.T) {
	cart := derive([]*services.CartItem{
		cartItem(1, 10, 1, "20.00"),
	})
	require.EqualValues(t, 1, cart.ItemCount)
	requireMoney(t, "20.00", cart.Subtotal)
	requireMoney(t, "1.80", cart.TaxAmount)
	requireMoney(t, "21.80", cart.Total)

	cart = derive([]*services.CartItem{
		cartItem(1, 10, 3, "20.00"),
	})
	require.EqualValues(t, 3, cart.ItemCount)
	requireMoney(t, "60.00", cart.Subtotal)
	requireMoney(t, "5.40", cart.TaxAmount)
	requireMoney(t, "65.40", cart.Total)
}

func TestDeriveRoundsPerCart(t *testing.T) {
	// 3 x 9.99 = 29.97, tax 2.6973 rounds to 2.70.
	cart := derive([]*services.CartItem{
		cartItem(1, 10, 3, "9.99"),
	})
	requireMoney(t, "29.97", cart.Subtotal)
	requireMoney(t, "2.70", cart.TaxAmount)
	requireMoney(t, "32.67", cart.Total)
}

func TestUpdateQuantityOptimistic(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 1, "20.00"))

	var seen []*services.Cart
	m.OnChange(func(c *services.Cart) { seen = append(seen, c) })

	require.NoError(t, m.UpdateQuantity(context.Background(), 1, 3))

	cart := m.Current()
	require.EqualValues(t, 3, cart.Items[0].Quantity)
	requireMoney(t, "60.00", cart.Subtotal)
	requireMoney(t, "65.40", cart.Total)

	require.Len(t, seen, 1, "confirmed update publishes once, optimistically")
	require.Equal(t, 0, svc.fetchCalls, "confirmed update does not refetch")
	require.Equal(t, 1, svc.updateCalls)
}

func TestUpdateQuantityRollsBackOnFailure(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))
	svc.failUpdate = true

	var seen []*services.Cart
	m.OnChange(func(c *services.Cart) { seen = append(seen, c) })

	err := m.UpdateQuantity(context.Background(), 1, 5)
	require.Error(t, err, "server failure must propagate after rollback")

	cart := m.Current()
	require.Len(t, cart.Items, 1)
	require.EqualValues(t, 2, cart.Items[0].Quantity)
	requireMoney(t, "20.00", cart.Subtotal)
	requireMoney(t, "1.80", cart.TaxAmount)
	requireMoney(t, "21.80", cart.Total)

	// Optimistic publish, rollback publish, then the authoritative resync.
	require.Len(t, seen, 3)
	require.EqualValues(t, 5, seen[0].Items[0].Quantity)
	require.EqualValues(t, 2, seen[1].Items[0].Quantity)
	require.EqualValues(t, 2, seen[2].Items[0].Quantity)
	require.Equal(t, 1, svc.fetchCalls, "failure triggers one authoritative resync")
}

func TestRollbackSurvivesFailedResync(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))
	svc.failUpdate = true
	svc.failFetch = true

	require.Error(t, m.UpdateQuantity(context.Background(), 1, 5))

	// Resync failed, so the snapshot stands.
	require.EqualValues(t, 2, m.Current().Items[0].Quantity)
}

func TestQuantityBoundsAreNoOps(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))

	require.NoError(t, m.UpdateQuantity(context.Background(), 1, 0))
	require.NoError(t, m.UpdateQuantity(context.Background(), 1, 100))
	require.NoError(t, m.AddItem(context.Background(), 10, 0))
	require.NoError(t, m.AddItem(context.Background(), 10, 100))

	require.EqualValues(t, 2, m.Current().Items[0].Quantity)
	require.Equal(t, 0, svc.updateCalls, "out-of-range quantities never reach the server")
	require.Equal(t, 0, svc.addCalls)
}

func TestUpdateUnknownItemIsNoOp(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))

	require.NoError(t, m.UpdateQuantity(context.Background(), 42, 3))
	require.NoError(t, m.RemoveItem(context.Background(), 42))

	require.Equal(t, 0, svc.updateCalls)
	require.Equal(t, 0, svc.removeCalls)
}

func TestUpdatePreservesUnchangedItemIdentity(t *testing.T) {
	first := cartItem(1, 10, 1, "10.00")
	second := cartItem(2, 11, 1, "5.00")
	m, _ := managerWith(first, second)

	before := m.Current()
	require.NoError(t, m.UpdateQuantity(context.Background(), 2, 4))
	after := m.Current()

	require.Same(t, before.Items[0], after.Items[0], "untouched items keep their identity")
	require.NotSame(t, before.Items[1], after.Items[1])
	require.EqualValues(t, 1, before.Items[1].Quantity, "snapshot item must not be mutated")
	require.EqualValues(t, 4, after.Items[1].Quantity)
}

func TestRemoveItemOptimistic(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"), cartItem(2, 11, 1, "5.00"))

	require.NoError(t, m.RemoveItem(context.Background(), 1))

	cart := m.Current()
	require.Len(t, cart.Items, 1)
	require.EqualValues(t, 2, cart.Items[0].ID)
	requireMoney(t, "5.00", cart.Subtotal)
	require.Equal(t, 0, svc.fetchCalls, "confirmed removal does not refetch")
}

func TestRemoveRollsBackOnFailure(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))
	svc.failRemove = true

	require.Error(t, m.RemoveItem(context.Background(), 1))

	cart := m.Current()
	require.Len(t, cart.Items, 1)
	requireMoney(t, "21.80", cart.Total)
}

func TestAddItemRefetchesAndHighlights(t *testing.T) {
	m, svc := managerWith()

	require.NoError(t, m.AddItem(context.Background(), 10, 1))

	cart := m.Current()
	require.Len(t, cart.Items, 1)
	requireMoney(t, "20.00", cart.Subtotal)
	requireMoney(t, "21.80", cart.Total)
	require.Equal(t, 1, svc.fetchCalls, "add pulls the server cart for id and frozen price")

	id, ok := m.RecentlyAdded()
	require.True(t, ok)
	require.EqualValues(t, 10, id)

	m.DismissHighlight()
	_, ok = m.RecentlyAdded()
	require.False(t, ok)
}

func TestAddItemFailureKeepsCart(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 1, "20.00"))
	svc.failAdd = true

	require.Error(t, m.AddItem(context.Background(), 11, 1))

	cart := m.Current()
	require.Len(t, cart.Items, 1)
	requireMoney(t, "21.80", cart.Total)
	_, ok := m.RecentlyAdded()
	require.False(t, ok, "failed add must not highlight")
}

func TestClearResetsLocally(t *testing.T) {
	m, svc := managerWith(cartItem(1, 10, 2, "10.00"))

	m.Clear()

	cart := m.Current()
	require.Empty(t, cart.Items)
	require.EqualValues(t, 0, cart.ItemCount)
	requireMoney(t, "0.00", cart.Total)
	require.Equal(t, 0, svc.removeCalls, "logout clear is purely local")
	require.Equal(t, 0, svc.fetchCalls)
}
