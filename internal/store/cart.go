package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
)

type cartSnapshot struct {
	Items []domain.CartItem `json:"items"`
}

// Cart is a quantity-tracked collection of line items keyed by CartProduct.ID.
type Cart struct {
	mu      sync.RWMutex
	items   []domain.CartItem
	storage Storage
	logger  *slog.Logger
}

// NewCart creates an empty cart.
func NewCart(s Storage, logger *slog.Logger) *Cart {
	return &Cart{storage: s, logger: logger}
}

// Load replaces the in-memory cart with the persisted snapshot, if any. A
// failed read leaves the cart untouched and is returned.
func (c *Cart) Load(ctx context.Context) error {
	var snap cartSnapshot
	found, err := loadJSON(ctx, c.storage, c.logger, storage.KeyCart, &snap)
	if !found {
		return err
	}

	items := make([]domain.CartItem, 0, len(snap.Items))
	seen := make(map[string]struct{}, len(snap.Items))
	for _, it := range snap.Items {
		if it.Product.ID == "" || it.Quantity < 1 {
			continue
		}
		if _, dup := seen[it.Product.ID]; dup {
			continue
		}
		seen[it.Product.ID] = struct{}{}
		items = append(items, it)
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Add increments the line for p.ID, or inserts it with quantity 1. It
// returns false without mutating anything when the stock ceiling would be
// exceeded.
func (c *Cart) Add(p domain.CartProduct) bool {
	return c.AddOutcome(p) == nil
}

// AddOutcome is Add with the rejection reason: ErrOutOfStock or ErrStockExceeded.
func (c *Cart) AddOutcome(p domain.CartProduct) error {
	if p.ID == "" {
		return ErrInvalidItem
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(p.ID); i >= 0 {
		// The ceiling is the stock captured when the line was first added.
		ceiling := c.items[i].Product.Stock
		if ceiling <= 0 {
			return ErrOutOfStock
		}
		if c.items[i].Quantity+1 > ceiling {
			return ErrStockExceeded
		}
		c.items[i].Quantity++
	} else {
		if p.Stock <= 0 {
			return ErrOutOfStock
		}
		c.items = append(c.items, domain.CartItem{Product: p, Quantity: 1})
	}

	c.persistLocked()
	return nil
}

// Remove decrements the line for id, deleting it when it reaches zero.
// Absent ids are a no-op and report false.
func (c *Cart) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	if c.items[i].Quantity <= 1 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	} else {
		c.items[i].Quantity--
	}

	c.persistLocked()
	return true
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.persistLocked()
}

// Quantity returns the stored quantity for id, or 0.
func (c *Cart) Quantity(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i].Quantity
	}
	return 0
}

// TotalPrice sums (discount price, else price) times quantity.
func (c *Cart) TotalPrice() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, it := range c.items {
		total += it.LineTotal()
	}
	return total
}

// ItemCount is the sum of all quantities.
func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.CartItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.CartItem{}, c.items...)
}

// Item returns the line for id.
func (c *Cart) Item(id string) (domain.CartItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	return domain.CartItem{}, false
}

func (c *Cart) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].Product.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) persistLocked() {
	items := c.items
	if items == nil {
		items = []domain.CartItem{}
	}
	persistJSON(c.storage, c.logger, storage.KeyCart, cartSnapshot{Items: items})
}
