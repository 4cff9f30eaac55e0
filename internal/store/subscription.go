package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
)

type subscriptionSnapshot struct {
	Items []domain.SubscriptionItem `json:"items"`
}

// Subscriptions is the recurring-delivery cart. Adding an item for a product
// that is already present replaces it; quantities are never merged.
type Subscriptions struct {
	mu      sync.RWMutex
	items   []domain.SubscriptionItem
	storage Storage
	logger  *slog.Logger
}

// NewSubscriptions creates an empty subscription cart.
func NewSubscriptions(s Storage, logger *slog.Logger) *Subscriptions {
	return &Subscriptions{storage: s, logger: logger}
}

// Load rehydrates from the persisted snapshot.
func (s *Subscriptions) Load(ctx context.Context) error {
	var snap subscriptionSnapshot
	found, err := loadJSON(ctx, s.storage, s.logger, storage.KeySubscriptions, &snap)
	if !found {
		return err
	}

	items := make([]domain.SubscriptionItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		if it.Product.ID == "" || it.Quantity < 1 || !it.Frequency.Valid() {
			continue
		}
		items = append(items, it)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// Add replaces the entry for item.Product.ID or appends it. replaced reports
// which happened.
func (s *Subscriptions) Add(item domain.SubscriptionItem) (replaced bool, err error) {
	if item.Product.ID == "" {
		return false, ErrInvalidItem
	}
	if !item.Frequency.Valid() {
		return false, fmt.Errorf("%w: unknown frequency %q", ErrInvalidItem, item.Frequency)
	}
	if item.Quantity < 0 {
		return false, fmt.Errorf("%w: negative quantity", ErrInvalidItem)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.Product.ID); i >= 0 {
		s.items[i] = item
		replaced = true
	} else {
		s.items = append(s.items, item)
	}

	s.persistLocked()
	return replaced, nil
}

// Remove filters out the entry for productID. Absent ids are a no-op.
func (s *Subscriptions) Remove(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.persistLocked()
	return true
}

// Clear empties the subscription cart.
func (s *Subscriptions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.persistLocked()
}

// Items returns a copy of the entries in insertion order.
func (s *Subscriptions) Items() []domain.SubscriptionItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SubscriptionItem{}, s.items...)
}

// Get returns the entry for productID.
func (s *Subscriptions) Get(productID string) (domain.SubscriptionItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.items[i], true
	}
	return domain.SubscriptionItem{}, false
}

// MonthlyTotal sums the display-only monthly projection of every entry.
func (s *Subscriptions) MonthlyTotal() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, it := range s.items {
		total += it.MonthlyCost()
	}
	return total
}

func (s *Subscriptions) indexOf(productID string) int {
	for i := range s.items {
		if s.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// persistLocked writes the snapshot without zero-quantity entries.
func (s *Subscriptions) persistLocked() {
	items := make([]domain.SubscriptionItem, 0, len(s.items))
	for _, it := range s.items {
		if it.Quantity > 0 {
			items = append(items, it)
		}
	}
	persistJSON(s.storage, s.logger, storage.KeySubscriptions, subscriptionSnapshot{Items: items})
}
