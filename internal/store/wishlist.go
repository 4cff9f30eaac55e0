package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/pkg/tracing"
)

const tracerName = "github.com/utafrali/storefront/internal/store"

// WishlistRemote is the remote wishlist service, already scoped to one user.
type WishlistRemote interface {
	GetWishlist(ctx context.Context, branchID string) ([]domain.Product, error)
	Toggle(ctx context.Context, productID, inventoryID string) error
}

// ToggleResult describes a completed toggle.
type ToggleResult struct {
	Key string `json:"key"`
	// WasFavorite is the membership before the toggle; callers build
	// feedback from it regardless of the remote outcome.
	WasFavorite bool `json:"was_favorite"`
	// RolledBack is set when the remote call failed and the optimistic
	// change was reverted.
	RolledBack bool `json:"rolled_back"`
}

type wishlistSnapshot struct {
	Entries []domain.WishlistEntry `json:"entries"`
}

// Wishlist holds favourited products, most recent first. Every entry is
// identified by domain.WishlistKey.
type Wishlist struct {
	mu       sync.RWMutex
	entries  []domain.WishlistEntry
	inFlight map[string]struct{}

	remote  WishlistRemote
	storage Storage
	logger  *slog.Logger
}

// NewWishlist creates an empty wishlist.
func NewWishlist(remote WishlistRemote, s Storage, logger *slog.Logger) *Wishlist {
	return &Wishlist{
		inFlight: make(map[string]struct{}),
		remote:   remote,
		storage:  s,
		logger:   logger,
	}
}

// Load rehydrates from the persisted snapshot.
func (w *Wishlist) Load(ctx context.Context) error {
	var snap wishlistSnapshot
	found, err := loadJSON(ctx, w.storage, w.logger, storage.KeyWishlist, &snap)
	if !found {
		return err
	}
	entries := dedupeEntries(snap.Entries)

	w.mu.Lock()
	w.entries = entries
	w.mu.Unlock()
	return nil
}

// scopeRemote turns remote products into entries. The remote lists a product
// with all of its variants; when local entries favourited specific variants
// of it, each of those stays scoped to its variant.
func scopeRemote(products []domain.Product, local []domain.WishlistEntry) []domain.WishlistEntry {
	scopedKeys := make(map[string][]string)
	for _, e := range local {
		if key := e.Key(); key != e.Product.ID {
			scopedKeys[e.Product.ID] = append(scopedKeys[e.Product.ID], key)
		}
	}

	entries := make([]domain.WishlistEntry, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		scoped := false
		if len(p.Variants) > 1 {
			for _, key := range scopedKeys[p.ID] {
				if v, err := p.WithOnlyVariant(key); err == nil {
					entries = append(entries, domain.WishlistEntry{Product: v.Clone()})
					scoped = true
				}
			}
		}
		if !scoped {
			entries = append(entries, domain.WishlistEntry{Product: p.Clone()})
		}
	}
	return entries
}

// Contains reports whether an entry with the given key exists.
func (w *Wishlist) Contains(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.indexOf(key) >= 0
}

// Add prepends p unless an entry with the same key exists.
func (w *Wishlist) Add(p domain.Product) bool {
	if p.ID == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.addLocked(p) {
		return false
	}
	w.persistLocked()
	return true
}

// Remove drops the entry with the given key.
func (w *Wishlist) Remove(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, _, ok := w.removeLocked(key); !ok {
		return false
	}
	w.persistLocked()
	return true
}

// Clear empties the wishlist.
func (w *Wishlist) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
	w.persistLocked()
}

// Entries returns a copy of the entries, most recent first.
func (w *Wishlist) Entries() []domain.WishlistEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.WishlistEntry, len(w.entries))
	for i, e := range w.entries {
		out[i] = domain.WishlistEntry{Product: e.Product.Clone()}
	}
	return out
}

// Toggle flips membership of p (scoped to variantID when given) optimistically,
// then tells the remote service. A remote failure reverts the local change and
// is reported through ToggleResult.RolledBack, not as an error. The error is
// non-nil only when the toggle could not start: an unknown variant or another
// toggle on the same key still awaiting the remote.
func (w *Wishlist) Toggle(ctx context.Context, p domain.Product, variantID string) (ToggleResult, error) {
	stored := p.Clone()
	if variantID != "" {
		scoped, err := p.WithOnlyVariant(variantID)
		if err != nil {
			return ToggleResult{}, fmt.Errorf("toggle wishlist %s: %w", p.ID, err)
		}
		stored = scoped
	}
	key := domain.WishlistKey(stored)

	ctx, span := tracing.Tracer(tracerName).Start(ctx, "Wishlist.Toggle")
	defer span.End()
	span.SetAttributes(
		attribute.String("wishlist.key", key),
		attribute.String("product.id", p.ID),
	)

	// Phase one: apply the local delta and remember its inverse.
	w.mu.Lock()
	if _, busy := w.inFlight[key]; busy {
		w.mu.Unlock()
		return ToggleResult{Key: key}, ErrToggleInFlight
	}
	w.inFlight[key] = struct{}{}

	res := ToggleResult{Key: key}
	var (
		removed    domain.WishlistEntry
		removedIdx int
	)
	if e, idx, ok := w.removeLocked(key); ok {
		res.WasFavorite = true
		removed, removedIdx = e, idx
	} else {
		w.addLocked(stored)
	}
	w.persistLocked()
	w.mu.Unlock()

	err := w.remote.Toggle(ctx, p.ID, variantID)

	// Phase two: clear the marker and undo on failure.
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, key)

	if err == nil {
		return res, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	wishlistRollbacks.Inc()
	w.logger.WarnContext(ctx, "wishlist toggle failed, rolling back",
		slog.String("product_id", p.ID),
		slog.String("variant_id", variantID),
		slog.Bool("was_favorite", res.WasFavorite),
		slog.String("error", err.Error()),
	)

	if res.WasFavorite {
		w.insertLocked(removedIdx, removed)
	} else {
		w.removeLocked(key)
	}
	w.persistLocked()
	res.RolledBack = true
	return res, nil
}

// Sync replaces the local entries with the remote list for branchID. Keys
// with a toggle in flight keep their optimistic membership. On error the
// local entries are left alone and the error is returned for logging.
func (w *Wishlist) Sync(ctx context.Context, branchID string) error {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "Wishlist.Sync")
	defer span.End()

	products, err := w.remote.GetWishlist(ctx, branchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.WarnContext(ctx, "wishlist sync failed, keeping local entries",
			slog.String("branch_id", branchID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("sync wishlist: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	remote := dedupeEntries(scopeRemote(products, w.entries))

	if len(w.inFlight) > 0 {
		local := make(map[string]domain.WishlistEntry, len(w.entries))
		for _, e := range w.entries {
			local[e.Key()] = e
		}
		merged := make([]domain.WishlistEntry, 0, len(remote))
		for _, e := range remote {
			if _, busy := w.inFlight[e.Key()]; busy {
				if _, ok := local[e.Key()]; !ok {
					continue
				}
			}
			merged = append(merged, e)
		}
		for key := range w.inFlight {
			if e, ok := local[key]; ok && indexByKey(merged, key) < 0 {
				merged = append([]domain.WishlistEntry{e}, merged...)
			}
		}
		remote = merged
	}

	w.entries = remote
	w.persistLocked()
	span.SetAttributes(attribute.Int("wishlist.size", len(remote)))
	return nil
}

func (w *Wishlist) indexOf(key string) int {
	return indexByKey(w.entries, key)
}

func (w *Wishlist) addLocked(p domain.Product) bool {
	if w.indexOf(domain.WishlistKey(p)) >= 0 {
		return false
	}
	w.entries = append([]domain.WishlistEntry{{Product: p.Clone()}}, w.entries...)
	return true
}

func (w *Wishlist) removeLocked(key string) (domain.WishlistEntry, int, bool) {
	i := w.indexOf(key)
	if i < 0 {
		return domain.WishlistEntry{}, -1, false
	}
	e := w.entries[i]
	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	return e, i, true
}

// insertLocked restores e at idx, clamped to the current length.
func (w *Wishlist) insertLocked(idx int, e domain.WishlistEntry) {
	if w.indexOf(e.Key()) >= 0 {
		return
	}
	idx = min(max(idx, 0), len(w.entries))
	w.entries = append(w.entries, domain.WishlistEntry{})
	copy(w.entries[idx+1:], w.entries[idx:])
	w.entries[idx] = e
}

func (w *Wishlist) persistLocked() {
	entries := w.entries
	if entries == nil {
		entries = []domain.WishlistEntry{}
	}
	persistJSON(w.storage, w.logger, storage.KeyWishlist, wishlistSnapshot{Entries: entries})
}

func indexByKey(entries []domain.WishlistEntry, key string) int {
	for i := range entries {
		if entries[i].Key() == key {
			return i
		}
	}
	return -1
}

func dedupeEntries(in []domain.WishlistEntry) []domain.WishlistEntry {
	out := make([]domain.WishlistEntry, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if e.Product.ID == "" {
			continue
		}
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
