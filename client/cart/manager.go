package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/client/services"
)

const (
	MinQuantity = 1
	MaxQuantity = 99

	// How long a just-added product stays highlighted.
	highlightTTL = 4 * time.Second
)

// TaxRate matches the backend's fixed rate; totals derived locally must
// agree with what the server would compute from the same items.
var TaxRate = decimal.NewFromFloat(0.09)

// Service is what the manager needs from the cart API.
type Service interface {
	Fetch(ctx context.Context) (*services.Cart, error)
	Add(ctx context.Context, productID, quantity uint) (*services.CartItem, error)
	UpdateQuantity(ctx context.Context, itemID, quantity uint) error
	Remove(ctx context.Context, itemID uint) error
}

// Manager owns the client's view of the cart. Quantity updates and removals
// are applied locally before the server confirms them; on failure the
// pre-mutation snapshot is restored and the true state is re-fetched.
//
// Every mutation passes through one state sequence: idle, optimistic
// applied, then either confirmed or rolled back and resynced. No path
// leaves optimistic state in place after a failure.
type Manager struct {
	svc Service
	log *slog.Logger

	mu           sync.Mutex
	current      *services.Cart
	onChange     []func(*services.Cart)
	recentlyAdd  uint
	highlightGen uint64
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func NewManager(svc Service, opts ...Option) *Manager {
	m := &Manager{
		svc:     svc,
		log:     slog.Default(),
		current: emptyCart(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func emptyCart() *services.Cart {
	return &services.Cart{
		Subtotal:  decimal.Zero,
		TaxAmount: decimal.Zero,
		Total:     decimal.Zero,
		Items:     []*services.CartItem{},
	}
}

// derive recomputes every derived field from the item list. It is the only
// way cart totals are ever produced, so they cannot drift from the items.
func derive(items []*services.CartItem) *services.Cart {
	cart := &services.Cart{Items: items}
	subtotal := decimal.Zero
	for _, it := range items {
		cart.ItemCount += it.Quantity
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	cart.Subtotal = subtotal.Round(2)
	cart.TaxAmount = cart.Subtotal.Mul(TaxRate).Round(2)
	cart.Total = cart.Subtotal.Add(cart.TaxAmount)
	return cart
}

// Current returns the published cart. Treat it as read-only; the manager
// replaces the value wholesale on every change.
func (m *Manager) Current() *services.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers a callback invoked after every published cart change.
func (m *Manager) OnChange(fn func(*services.Cart)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

func (m *Manager) publish(cart *services.Cart) {
	m.mu.Lock()
	m.current = cart
	listeners := append([]func(*services.Cart){}, m.onChange...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cart)
	}
}

// Refresh replaces the cart with the server's authoritative state.
func (m *Manager) Refresh(ctx context.Context) error {
	cart, err := m.svc.Fetch(ctx)
	if err != nil {
		return err
	}
	m.publish(cart)
	return nil
}

// Clear resets to an empty cart without touching the server (logout).
func (m *Manager) Clear() {
	m.publish(emptyCart())
	m.mu.Lock()
	m.recentlyAdd = 0
	m.highlightGen++
	m.mu.Unlock()
}

// AddItem sends the add and then re-fetches the whole cart: the server
// assigns the item id and freezes the price, neither is knowable locally.
func (m *Manager) AddItem(ctx context.Context, productID, quantity uint) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil
	}

	snapshot := m.Current()

	if _, err := m.svc.Add(ctx, productID, quantity); err != nil {
		m.rollbackAndResync(ctx, snapshot)
		return err
	}

	if err := m.Refresh(ctx); err != nil {
		m.log.Warn("cart refetch after add failed", "error", err)
		return err
	}

	m.markRecentlyAdded(productID)
	return nil
}

// UpdateQuantity applies the change locally first, then confirms it with
// the server. A confirmed optimistic state is kept as-is, without a
// refetch; local and server state could diverge here if the server applied
// side effects the local derivation cannot see, which is accepted to save
// the round trip.
func (m *Manager) UpdateQuantity(ctx context.Context, itemID, quantity uint) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return nil
	}

	m.mu.Lock()
	snapshot := m.current
	items, found := itemsWithQuantity(m.current.Items, itemID, quantity)
	m.mu.Unlock()
	if !found {
		m.log.Debug("update for unknown cart item", "itemID", itemID)
		return nil
	}

	m.publish(derive(items))

	if err := m.svc.UpdateQuantity(ctx, itemID, quantity); err != nil {
		m.rollbackAndResync(ctx, snapshot)
		return err
	}
	return nil
}

// RemoveItem removes locally first, mirroring UpdateQuantity.
func (m *Manager) RemoveItem(ctx context.Context, itemID uint) error {
	m.mu.Lock()
	snapshot := m.current
	items, found := itemsWithout(m.current.Items, itemID)
	m.mu.Unlock()
	if !found {
		m.log.Debug("remove for unknown cart item", "itemID", itemID)
		return nil
	}

	m.publish(derive(items))

	if err := m.svc.Remove(ctx, itemID); err != nil {
		m.rollbackAndResync(ctx, snapshot)
		return err
	}
	return nil
}

// rollbackAndResync restores the pre-mutation snapshot, then re-fetches the
// authoritative cart to resolve what the server actually did.
func (m *Manager) rollbackAndResync(ctx context.Context, snapshot *services.Cart) {
	m.publish(snapshot)
	cart, err := m.svc.Fetch(ctx)
	if err != nil {
		m.log.Warn("cart resync failed, keeping rollback state", "error", err)
		return
	}
	m.publish(cart)
}

// itemsWithQuantity builds a new item slice where only the changed item is
// a new value; all other entries keep their identity so consumers doing
// pointer-equality change detection skip them.
func itemsWithQuantity(items []*services.CartItem, itemID, quantity uint) ([]*services.CartItem, bool) {
	found := false
	next := make([]*services.CartItem, len(items))
	for i, it := range items {
		if it.ID != itemID {
			next[i] = it
			continue
		}
		found = true
		changed := *it
		changed.Quantity = quantity
		changed.Subtotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
		next[i] = &changed
	}
	return next, found
}

func itemsWithout(items []*services.CartItem, itemID uint) ([]*services.CartItem, bool) {
	found := false
	next := make([]*services.CartItem, 0, len(items))
	for _, it := range items {
		if it.ID == itemID {
			found = true
			continue
		}
		next = append(next, it)
	}
	return next, found
}

func (m *Manager) markRecentlyAdded(productID uint) {
	m.mu.Lock()
	m.recentlyAdd = productID
	m.highlightGen++
	gen := m.highlightGen
	m.mu.Unlock()

	time.AfterFunc(highlightTTL, func() {
		m.mu.Lock()
		if m.highlightGen == gen {
			m.recentlyAdd = 0
		}
		m.mu.Unlock()
	})
}

// RecentlyAdded reports the product highlighted by the last successful add,
// until the highlight expires or is dismissed.
func (m *Manager) RecentlyAdded() (uint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recentlyAdd, m.recentlyAdd != 0
}

func (m *Manager) DismissHighlight() {
	m.mu.Lock()
	m.recentlyAdd = 0
	m.highlightGen++
	m.mu.Unlock()
}
