// Package store holds the client-side commerce state: cart, subscription
// cart, wishlist, branch resolution and the toast slot. Each store is an
// explicit object guarded by its own mutex; persistence is best-effort.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrOutOfStock rejects an add when the stock ceiling is zero.
	ErrOutOfStock = errors.New("out of stock")
	// ErrStockExceeded rejects an add that would go past the captured stock ceiling.
	ErrStockExceeded = errors.New("maximum stock limit reached")
	// ErrToggleInFlight rejects a wishlist toggle while another toggle on the
	// same key is awaiting the remote service.
	ErrToggleInFlight = errors.New("wishlist toggle already in progress")
	// ErrInvalidItem rejects malformed input such as an empty product id.
	ErrInvalidItem = errors.New("invalid item")

	ErrPermissionDenied  = errors.New("location permission denied")
	ErrPermissionBlocked = errors.New("location permission permanently denied")
	ErrLocationDisabled  = errors.New("location services disabled")
	ErrLocationTimeout   = errors.New("location request timed out")
	ErrLookupFailed      = errors.New("branch lookup failed")
	ErrInvalidPincode    = errors.New("invalid pincode")
)

// Storage is the persistence view a store needs: synchronous reads at load
// time and fire-and-forget writes afterwards. storage.Bucket implements it.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	Save(key, value string)
	Remove(key string)
}

// persistJSON marshals v and queues it. Marshal failures are logged only.
func persistJSON(s Storage, logger *slog.Logger, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.Save(key, string(data))
}

// loadJSON reads key into v. found is false when nothing usable was stored.
// A snapshot that does not decode is logged and treated as absent; a failed
// read is returned so the caller can keep its state and retry later.
func loadJSON(ctx context.Context, s Storage, logger *slog.Logger, key string, v any) (found bool, err error) {
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "failed to read snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logger.WarnContext(ctx, "discarding unreadable snapshot",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}
