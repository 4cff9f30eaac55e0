// Package session keeps one set of commerce stores per device and composes
// store calls into the user-facing operations the HTTP surface exposes.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/location"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/store"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Device sessions currently held in memory",
	})
	displacedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_displaced_total",
		Help: "Sessions dropped because the session cap was reached",
	})
)

// DefaultMaxSessions bounds the in-memory sessions when Config leaves it unset.
const DefaultMaxSessions = 10000

// Events publishes storefront domain events. *event.Producer implements it.
type Events interface {
	PublishCartUpdated(ctx context.Context, deviceID string, items []domain.CartItem, total int64) error
	PublishWishlistToggled(ctx context.Context, data event.WishlistToggledData) error
	PublishBranchResolved(ctx context.Context, data event.BranchResolvedData) error
}

// WishlistFactory returns the remote wishlist scoped to a device.
type WishlistFactory func(deviceID string) store.WishlistRemote

// Config holds the session tuning knobs.
type Config struct {
	IdleTTL     time.Duration
	MaxSessions int
	Branch      store.BranchConfig
}

// Dependencies are shared by every session.
type Dependencies struct {
	KV        storage.KV
	Persister *storage.Persister
	Wishlist  WishlistFactory
	Branches  store.BranchLookup
	Events    Events
	Logger    *slog.Logger
}

// Manager owns the device sessions. At most MaxSessions are held; inserting
// past the cap drops the least recently used one.
type Manager struct {
	mu       sync.Mutex
	sessions *lru.Cache
	sweeping bool

	cfg  Config
	deps Dependencies
	now  func() time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg Config, deps Dependencies) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	m := &Manager{cfg: cfg, deps: deps, now: time.Now}
	// Only fails for a non-positive size.
	m.sessions, _ = lru.NewWithEvict(cfg.MaxSessions, m.onDisplaced)
	return m
}

// Get returns the session for deviceID, building and hydrating it from
// storage on first use. When persisted state cannot be read the session is
// withheld, so callers never write over a snapshot they did not load.
func (m *Manager) Get(ctx context.Context, deviceID string) (*Session, error) {
	if deviceID == "" {
		return nil, apperrors.InvalidInput("device id is required")
	}

	m.mu.Lock()
	var s *Session
	if v, ok := m.sessions.Get(deviceID); ok {
		s = v.(*Session)
	} else {
		s = m.newSession(deviceID)
		m.sessions.Add(deviceID, s)
		activeSessions.Set(float64(m.sessions.Len()))
	}
	m.mu.Unlock()

	s.touch(m.now())
	if err := s.hydrate(ctx); err != nil {
		m.deps.Logger.WarnContext(ctx, "session hydration failed",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("device state is temporarily unavailable", err)
	}
	return s, nil
}

// EvictIdle drops sessions not used since now minus the idle TTL and returns
// how many were removed. Persisted state survives eviction.
func (m *Manager) EvictIdle(now time.Time) int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweeping = true
	defer func() { m.sweeping = false }()

	evicted := 0
	for _, key := range m.sessions.Keys() {
		v, ok := m.sessions.Peek(key)
		if !ok {
			continue
		}
		if v.(*Session).lastSeen().Before(cutoff) {
			m.sessions.Remove(key)
			evicted++
		}
	}
	activeSessions.Set(float64(m.sessions.Len()))

	if evicted > 0 {
		m.deps.Logger.Info("evicted idle sessions",
			slog.Int("evicted", evicted),
			slog.Int("remaining", m.sessions.Len()),
		)
	}
	return evicted
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// onDisplaced is called by the cache with m.mu held, for cap evictions and
// for the removals EvictIdle makes. Only the former are counted.
func (m *Manager) onDisplaced(_, value any) {
	if m.sweeping {
		return
	}
	s := value.(*Session)
	displacedSessions.Inc()
	m.deps.Logger.Debug("session displaced by cap", slog.String("device_id", s.DeviceID))
}

func (m *Manager) newSession(deviceID string) *Session {
	logger := m.deps.Logger.With(slog.String("device_id", deviceID))
	bucket := storage.NewBucket(m.deps.KV, m.deps.Persister, storage.DevicePrefix(deviceID))
	settings := &location.Deferred{}

	var remote store.WishlistRemote
	if m.deps.Wishlist != nil {
		remote = m.deps.Wishlist(deviceID)
	}

	return &Session{
		DeviceID:      deviceID,
		Cart:          store.NewCart(bucket, logger),
		Subscriptions: store.NewSubscriptions(bucket, logger),
		Wishlist:      store.NewWishlist(remote, bucket, logger),
		Branch: store.NewBranch(m.deps.Branches, store.Device{Settings: settings},
			m.cfg.Branch, bucket, logger),
		Toast:    store.NewToast(),
		settings: settings,
		events:   m.deps.Events,
		logger:   logger,
	}
}
