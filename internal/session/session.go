package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/location"
	"github.com/utafrali/storefront/internal/store"
)

// Toast messages shown after session operations.
const (
	MsgAddedToCart          = "Added to cart"
	MsgStockLimit           = "Maximum stock limit reached!"
	MsgOutOfStock           = "Out of stock"
	MsgAddedToWishlist      = "Added to Wishlist!"
	MsgRemovedFromWishlist  = "Removed from Wishlist"
	MsgSubscriptionAdded    = "Subscription added"
	MsgSubscriptionUpdated  = "Subscription updated"
	MsgSubscriptionRemoved  = "Subscription removed"
	MsgWishlistToggleBusy   = "Please wait, updating your wishlist"
	MsgLocationSettingsHint = "Enable location access in settings to find stores near you"
)

const hydrateTimeout = 5 * time.Second

// Session is one device's stores plus the composed operations.
type Session struct {
	DeviceID      string
	Cart          *store.Cart
	Subscriptions *store.Subscriptions
	Wishlist      *store.Wishlist
	Branch        *store.Branch
	Toast         *store.Toast

	settings *location.Deferred
	events   Events
	logger   *slog.Logger

	hydrateMu sync.Mutex
	hydrated  bool
	seen      atomic.Int64
}

// AddToCartResult is the outcome of AddToCart.
type AddToCartResult struct {
	Added    bool            `json:"added"`
	Item     domain.CartItem `json:"item"`
	Toast    domain.Toast    `json:"toast"`
	Quantity int             `json:"quantity"`
}

// AddToCart projects p (optionally a specific variant) onto a cart line and
// adds one unit. Stock rejections are reported through Added and the toast.
func (s *Session) AddToCart(ctx context.Context, p domain.Product, variantID string) (AddToCartResult, error) {
	cp, err := domain.NewCartProduct(p, variantID)
	if err != nil {
		return AddToCartResult{}, err
	}

	var res AddToCartResult
	switch err := s.Cart.AddOutcome(cp); {
	case err == nil:
		res.Added = true
		res.Toast = s.Toast.Show(MsgAddedToCart, domain.ToastSuccess)
		s.publishCart(ctx)
	case errors.Is(err, store.ErrStockExceeded):
		res.Toast = s.Toast.Show(MsgStockLimit, "")
	case errors.Is(err, store.ErrOutOfStock):
		res.Toast = s.Toast.Show(MsgOutOfStock, "")
	default:
		return AddToCartResult{}, err
	}

	if item, ok := s.Cart.Item(cp.ID); ok {
		res.Item = item
	} else {
		res.Item = domain.CartItem{Product: cp}
	}
	res.Quantity = res.Item.Quantity
	return res, nil
}

// RemoveFromCart decrements one unit of the line id.
func (s *Session) RemoveFromCart(ctx context.Context, id string) bool {
	if !s.Cart.Remove(id) {
		return false
	}
	s.publishCart(ctx)
	return true
}

// ClearCart empties the cart.
func (s *Session) ClearCart(ctx context.Context) {
	s.Cart.Clear()
	s.publishCart(ctx)
}

// SaveSubscription adds or replaces a subscription and shows the matching toast.
func (s *Session) SaveSubscription(item domain.SubscriptionItem) (domain.Toast, error) {
	replaced, err := s.Subscriptions.Add(item)
	if err != nil {
		return domain.Toast{}, err
	}
	if replaced {
		return s.Toast.Show(MsgSubscriptionUpdated, domain.ToastSuccess), nil
	}
	return s.Toast.Show(MsgSubscriptionAdded, domain.ToastSuccess), nil
}

// RemoveSubscription drops the subscription for productID.
func (s *Session) RemoveSubscription(productID string) bool {
	if !s.Subscriptions.Remove(productID) {
		return false
	}
	s.Toast.Show(MsgSubscriptionRemoved, domain.ToastSuccess)
	return true
}

// ToggleWishlist flips membership and shows feedback based on the
// pre-toggle state, whatever the remote outcome.
func (s *Session) ToggleWishlist(ctx context.Context, p domain.Product, variantID string) (store.ToggleResult, domain.Toast, error) {
	res, err := s.Wishlist.Toggle(ctx, p, variantID)
	if errors.Is(err, store.ErrToggleInFlight) {
		return res, s.Toast.Show(MsgWishlistToggleBusy, domain.ToastWarning), err
	}
	if err != nil {
		return res, domain.Toast{}, err
	}

	msg := MsgAddedToWishlist
	if res.WasFavorite {
		msg = MsgRemovedFromWishlist
	}
	toast := s.Toast.Show(msg, "")

	if !res.RolledBack && s.events != nil {
		s.publish(ctx, event.TopicWishlistToggled, s.events.PublishWishlistToggled(ctx, event.WishlistToggledData{
			DeviceID:  s.DeviceID,
			ProductID: p.ID,
			VariantID: variantID,
			Added:     !res.WasFavorite,
		}))
	}
	return res, toast, nil
}

// SyncWishlist refreshes the wishlist for the current branch.
func (s *Session) SyncWishlist(ctx context.Context) error {
	branchID := ""
	if b := s.Branch.State().CurrentBranch; b != nil {
		branchID = b.ID
	}
	return s.Wishlist.Sync(ctx, branchID)
}

// ResolveGPS runs the GPS flow against a device report. openSettings is true
// when the flow asked for the settings screen.
func (s *Session) ResolveGPS(ctx context.Context, report location.Report) (b *domain.Branch, openSettings bool, err error) {
	reported := location.NewReported(report)
	b, err = s.Branch.RequestGPSWith(ctx, store.Device{
		Permissions: reported,
		Location:    reported,
		Settings:    reported,
	})
	if err == nil {
		s.publishBranch(ctx, store.SourceGPS)
	}
	return b, reported.SettingsRequested() || s.Branch.State().Prompt != store.PromptNone, err
}

// FetchBranchByPincode resolves by postal code.
func (s *Session) FetchBranchByPincode(ctx context.Context, pincode string) (*domain.Branch, error) {
	b, err := s.Branch.FetchByPincode(ctx, pincode)
	if err == nil {
		s.publishBranch(ctx, store.SourcePincode)
	}
	return b, err
}

// FetchBranchByCoordinates resolves for a saved address.
func (s *Session) FetchBranchByCoordinates(ctx context.Context, lat, lng float64) (*domain.Branch, error) {
	b, err := s.Branch.FetchByCoordinates(ctx, lat, lng)
	if err == nil {
		s.publishBranch(ctx, store.SourceCoordinates)
	}
	return b, err
}

// FetchDefaultBranch resolves the fallback branch.
func (s *Session) FetchDefaultBranch(ctx context.Context) (*domain.Branch, error) {
	b, err := s.Branch.FetchDefault(ctx)
	if err == nil {
		s.publishBranch(ctx, store.SourceDefault)
	}
	return b, err
}

// OpenLocationSettings records the request; the caller instructs the device.
func (s *Session) OpenLocationSettings(ctx context.Context) (domain.Toast, error) {
	if err := s.Branch.OpenLocationSettings(ctx); err != nil {
		return domain.Toast{}, err
	}
	return s.Toast.Show(MsgLocationSettingsHint, domain.ToastInfo), nil
}

// SettingsRequests counts OpenLocationSettings calls on this session.
func (s *Session) SettingsRequests() int {
	return s.settings.Requested()
}

// hydrate reads the persisted stores once. A failed read leaves the session
// unhydrated so the next call retries instead of writing over durable state.
func (s *Session) hydrate(ctx context.Context) error {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()
	if s.hydrated {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
	defer cancel()

	if err := errors.Join(
		s.Cart.Load(ctx),
		s.Subscriptions.Load(ctx),
		s.Wishlist.Load(ctx),
		s.Branch.Initialize(ctx),
	); err != nil {
		return err
	}
	s.hydrated = true
	s.logger.DebugContext(ctx, "session hydrated",
		slog.Int("cart_items", s.Cart.ItemCount()),
		slog.Int("wishlist_entries", len(s.Wishlist.Entries())),
	)
	return nil
}

func (s *Session) touch(now time.Time) {
	s.seen.Store(now.UnixNano())
}

func (s *Session) lastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

func (s *Session) publishCart(ctx context.Context) {
	if s.events == nil {
		return
	}
	s.publish(ctx, event.TopicCartUpdated,
		s.events.PublishCartUpdated(ctx, s.DeviceID, s.Cart.Items(), s.Cart.TotalPrice()))
}

func (s *Session) publishBranch(ctx context.Context, source string) {
	if s.events == nil {
		return
	}
	st := s.Branch.State()
	if st.CurrentBranch == nil {
		return
	}
	s.publish(ctx, event.TopicBranchResolved, s.events.PublishBranchResolved(ctx, event.BranchResolvedData{
		DeviceID:           s.DeviceID,
		BranchID:           st.CurrentBranch.ID,
		Source:             source,
		IsManual:           st.IsManualLocation,
		IsServiceAvailable: st.IsServiceAvailable,
		Pincode:            st.Pincode,
	}))
}

// publish logs a failed event publish; events are best-effort.
func (s *Session) publish(ctx context.Context, topic string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}
