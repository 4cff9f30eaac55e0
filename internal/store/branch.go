package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/location"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/pkg/validator"
)

// User-facing messages set on BranchState.Error.
const (
	MsgLocationFailed   = "Unable to get your location. Please try again."
	MsgBranchNotFound   = "Unable to find a store near you. Please try again."
	MsgPincodeNotFound  = "Service not available for this pincode"
	MsgPincodeInvalid   = "Please enter a valid 6-digit pincode"
	MsgDefaultNotLoaded = "Unable to load store details. Please try again."
)

// Resolution sources, used as metric labels.
const (
	SourceGPS         = "gps"
	SourcePincode     = "pincode"
	SourceCoordinates = "coordinates"
	SourceDefault     = "default"
)

// SettingsPrompt tells the UI which settings screen to offer.
type SettingsPrompt string

const (
	PromptNone            SettingsPrompt = ""
	PromptPermission      SettingsPrompt = "permission"
	PromptLocationService SettingsPrompt = "location_service"
)

// BranchLookup is the remote branch service.
type BranchLookup interface {
	Nearest(ctx context.Context, lat, lng float64) (*domain.Branch, error)
	ByPincode(ctx context.Context, pincode string) (*domain.Branch, error)
	Default(ctx context.Context) (*domain.Branch, error)
}

// Device bundles the platform capabilities used by the GPS flow.
type Device struct {
	Permissions location.PermissionProvider
	Location    location.LocationProvider
	Settings    location.SettingsLauncher
}

// BranchConfig tunes the GPS flow.
type BranchConfig struct {
	// PermissionTimeout bounds the runtime permission request. Exceeding it
	// counts as never-ask-again.
	PermissionTimeout time.Duration
	// FixTimeout bounds a single position fix.
	FixTimeout time.Duration
	// RuntimePermission enables the check/request step.
	RuntimePermission bool
	// ServiceToggle enables the location-service enable prompt.
	ServiceToggle bool
}

// DefaultBranchConfig returns 15s timeouts with both platform steps enabled.
func DefaultBranchConfig() BranchConfig {
	return BranchConfig{
		PermissionTimeout: 15 * time.Second,
		FixTimeout:        15 * time.Second,
		RuntimePermission: true,
		ServiceToggle:     true,
	}
}

// BranchState is a point-in-time copy of the branch store.
type BranchState struct {
	CurrentBranch      *domain.Branch        `json:"current_branch"`
	IsManualLocation   bool                  `json:"is_manual_location"`
	IsServiceAvailable bool                  `json:"is_service_available"`
	LocationStatus     domain.LocationStatus `json:"location_status"`
	Loading            bool                  `json:"loading"`
	Error              string                `json:"error,omitempty"`
	Prompt             SettingsPrompt        `json:"settings_prompt,omitempty"`
	Initialized        bool                  `json:"initialized"`
	Pincode            string                `json:"pincode,omitempty"`
	IsDefault          bool                  `json:"is_default"`
}

// Branch resolves and remembers the serving branch.
type Branch struct {
	mu      sync.RWMutex
	state   BranchState
	pending int

	lookup  BranchLookup
	device  Device
	cfg     BranchConfig
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewBranch creates an uninitialized branch store.
func NewBranch(lookup BranchLookup, device Device, cfg BranchConfig, s Storage, logger *slog.Logger) *Branch {
	return &Branch{
		state: BranchState{
			LocationStatus:     domain.LocationIdle,
			IsServiceAvailable: true,
		},
		lookup:  lookup,
		device:  device,
		cfg:     cfg,
		storage: s,
		logger:  logger,
		now:     time.Now,
	}
}

// State returns a copy of the current state.
func (b *Branch) State() BranchState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := b.state
	st.CurrentBranch = cloneBranch(st.CurrentBranch)
	return st
}

// Initialize adopts the cached branch once. It never calls the network. A
// failed cache read leaves the store uninitialized so a later call retries.
func (b *Branch) Initialize(ctx context.Context) error {
	b.mu.RLock()
	done := b.state.Initialized
	b.mu.RUnlock()
	if done {
		return nil
	}

	var entry domain.BranchCacheEntry
	found, err := loadJSON(ctx, b.storage, b.logger, storage.KeyBranchCache, &entry)
	if err != nil {
		return err
	}
	cached := found && entry.Branch != nil

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Initialized {
		return nil
	}
	if cached {
		b.state.CurrentBranch = entry.Branch
		b.state.IsManualLocation = entry.IsManual
		b.state.IsServiceAvailable = entry.Branch.ServiceAvailable()
		b.state.Pincode = entry.Pincode
		b.state.IsDefault = entry.IsDefault
	}
	b.state.Initialized = true
	return nil
}

// RequestGPSAndFetchBranch runs the permission, fix and lookup flow with the
// store's own device capabilities.
func (b *Branch) RequestGPSAndFetchBranch(ctx context.Context) (*domain.Branch, error) {
	return b.RequestGPSWith(ctx, b.device)
}

// RequestGPSWith runs the GPS flow with dev. Failures update
// LocationStatus, Prompt or Error and never clear CurrentBranch.
func (b *Branch) RequestGPSWith(ctx context.Context, dev Device) (*domain.Branch, error) {
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "Branch.RequestGPS")
	defer span.End()

	b.begin()

	if b.cfg.RuntimePermission && dev.Permissions != nil {
		switch b.requestPermission(ctx, dev.Permissions) {
		case location.PermissionGranted:
		case location.PermissionNeverAskAgain:
			b.fail(SourceGPS, "blocked", domain.LocationDenied, PromptPermission, "")
			return nil, ErrPermissionBlocked
		default:
			b.fail(SourceGPS, "denied", domain.LocationDenied, PromptNone, "")
			return nil, ErrPermissionDenied
		}
	}
	b.setStatus(domain.LocationGranted)

	if dev.Location == nil {
		b.fail(SourceGPS, "disabled", domain.LocationDisabled, PromptLocationService, "")
		return nil, ErrLocationDisabled
	}

	if b.cfg.ServiceToggle {
		enabled, err := dev.Location.EnsureServiceEnabled(ctx)
		if err != nil || !enabled {
			b.fail(SourceGPS, "disabled", domain.LocationDisabled, PromptLocationService, "")
			return nil, ErrLocationDisabled
		}
	}

	coords, err := b.currentPosition(ctx, dev.Location)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, location.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			b.fail(SourceGPS, "timeout", domain.LocationUnavailable, PromptNone, "")
			return nil, ErrLocationTimeout
		case errors.Is(err, location.ErrCancelled), errors.Is(err, location.ErrUnavailable):
			b.fail(SourceGPS, "disabled", domain.LocationDisabled, PromptLocationService, "")
			return nil, ErrLocationDisabled
		default:
			b.logger.WarnContext(ctx, "position fix failed", slog.String("error", err.Error()))
			b.fail(SourceGPS, "failed", "", PromptNone, MsgLocationFailed)
			return nil, fmt.Errorf("acquire position: %w", err)
		}
	}
	span.SetAttributes(
		attribute.Float64("location.latitude", coords.Latitude),
		attribute.Float64("location.longitude", coords.Longitude),
	)

	branch, err := b.lookup.Nearest(ctx, coords.Latitude, coords.Longitude)
	if err != nil || branch == nil {
		span.SetStatus(codes.Error, "branch lookup failed")
		return nil, b.lookupFailed(ctx, SourceGPS, MsgBranchNotFound, err)
	}

	b.resolve(SourceGPS, branch, false, "", false)
	return cloneBranch(branch), nil
}

// FetchByPincode resolves the branch serving a 6-digit postal code.
func (b *Branch) FetchByPincode(ctx context.Context, pincode string) (*domain.Branch, error) {
	b.begin()

	if err := validator.Var(pincode, "required,pincode"); err != nil {
		b.fail(SourcePincode, "invalid", "", PromptNone, MsgPincodeInvalid)
		return nil, fmt.Errorf("%w: %q", ErrInvalidPincode, pincode)
	}

	branch, err := b.lookup.ByPincode(ctx, pincode)
	if err != nil || branch == nil {
		return nil, b.lookupFailed(ctx, SourcePincode, MsgPincodeNotFound, err)
	}

	b.resolve(SourcePincode, branch, true, pincode, false)
	return cloneBranch(branch), nil
}

// FetchByCoordinates resolves the nearest branch for a saved address.
func (b *Branch) FetchByCoordinates(ctx context.Context, lat, lng float64) (*domain.Branch, error) {
	b.begin()

	branch, err := b.lookup.Nearest(ctx, lat, lng)
	if err != nil || branch == nil {
		return nil, b.lookupFailed(ctx, SourceCoordinates, MsgBranchNotFound, err)
	}

	b.resolve(SourceCoordinates, branch, true, "", false)
	return cloneBranch(branch), nil
}

// FetchDefault resolves the fallback branch. A default branch is always
// treated as serviceable.
func (b *Branch) FetchDefault(ctx context.Context) (*domain.Branch, error) {
	b.begin()

	branch, err := b.lookup.Default(ctx)
	if err != nil || branch == nil {
		return nil, b.lookupFailed(ctx, SourceDefault, MsgDefaultNotLoaded, err)
	}

	b.resolve(SourceDefault, branch, true, "", true)
	return cloneBranch(branch), nil
}

// SetCurrent sets the branch directly. A nil branch is not persisted.
func (b *Branch) SetCurrent(branch *domain.Branch, manual bool) {
	branch = cloneBranch(branch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.CurrentBranch = branch
	b.state.IsManualLocation = manual
	b.state.IsServiceAvailable = branch == nil || branch.ServiceAvailable()
	b.state.Pincode = ""
	b.state.IsDefault = false
	b.state.Error = ""
	if branch != nil {
		b.persistLocked()
	}
}

// Clear resets to the idle, branchless state and drops the cache entry.
func (b *Branch) Clear(context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BranchState{
		LocationStatus:     domain.LocationIdle,
		IsServiceAvailable: true,
		Initialized:        b.state.Initialized,
		Loading:            b.pending > 0,
	}
	b.storage.Remove(storage.KeyBranchCache)
}

// OpenLocationSettings delegates to the platform settings deep link.
func (b *Branch) OpenLocationSettings(ctx context.Context) error {
	if b.device.Settings == nil {
		return nil
	}
	return b.device.Settings.OpenSettings(ctx)
}

// requestPermission checks, then requests within PermissionTimeout. A
// request that errors or times out is treated as never-ask-again.
func (b *Branch) requestPermission(ctx context.Context, p location.PermissionProvider) location.PermissionStatus {
	if status, err := p.Check(ctx); err == nil && status == location.PermissionGranted {
		return status
	}

	rctx, cancel := context.WithTimeout(ctx, b.cfg.PermissionTimeout)
	defer cancel()

	type outcome struct {
		status location.PermissionStatus
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		s, err := p.Request(rctx)
		ch <- outcome{s, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			b.logger.WarnContext(ctx, "permission request failed", slog.String("error", o.err.Error()))
			return location.PermissionNeverAskAgain
		}
		return o.status
	case <-rctx.Done():
		b.logger.WarnContext(ctx, "permission request timed out",
			slog.Duration("timeout", b.cfg.PermissionTimeout),
		)
		return location.PermissionNeverAskAgain
	}
}

// currentPosition bounds the fix by FixTimeout even if the provider ignores ctx.
func (b *Branch) currentPosition(ctx context.Context, lp location.LocationProvider) (location.Coordinates, error) {
	fctx, cancel := context.WithTimeout(ctx, b.cfg.FixTimeout)
	defer cancel()

	type outcome struct {
		coords location.Coordinates
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		c, err := lp.CurrentPosition(fctx)
		ch <- outcome{c, err}
	}()

	select {
	case o := <-ch:
		return o.coords, o.err
	case <-fctx.Done():
		return location.Coordinates{}, location.ErrTimeout
	}
}

func (b *Branch) begin() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending++
	b.state.Loading = true
	b.state.Error = ""
	b.state.Prompt = PromptNone
}

func (b *Branch) finishLocked() {
	if b.pending > 0 {
		b.pending--
	}
	b.state.Loading = b.pending > 0
}

func (b *Branch) setStatus(s domain.LocationStatus) {
	b.mu.Lock()
	b.state.LocationStatus = s
	b.mu.Unlock()
}

// fail records a failed attempt. An empty status leaves LocationStatus as is.
func (b *Branch) fail(source, outcome string, status domain.LocationStatus, prompt SettingsPrompt, msg string) {
	branchResolutions.WithLabelValues(source, outcome).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	if status != "" {
		b.state.LocationStatus = status
	}
	b.state.Prompt = prompt
	b.state.Error = msg
	b.finishLocked()
}

func (b *Branch) lookupFailed(ctx context.Context, source, msg string, err error) error {
	if err == nil {
		err = errors.New("empty branch")
	}
	b.logger.WarnContext(ctx, "branch lookup failed",
		slog.String("source", source),
		slog.String("error", err.Error()),
	)
	b.fail(source, "failed", "", PromptNone, msg)
	return fmt.Errorf("%w: %s: %w", ErrLookupFailed, source, err)
}

func (b *Branch) resolve(source string, branch *domain.Branch, manual bool, pincode string, isDefault bool) {
	branchResolutions.WithLabelValues(source, "resolved").Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.CurrentBranch = cloneBranch(branch)
	b.state.IsManualLocation = manual
	b.state.IsServiceAvailable = isDefault || branch.ServiceAvailable()
	b.state.Pincode = pincode
	b.state.IsDefault = isDefault
	b.state.Error = ""
	b.state.Prompt = PromptNone
	b.finishLocked()
	b.persistLocked()
}

func (b *Branch) persistLocked() {
	persistJSON(b.storage, b.logger, storage.KeyBranchCache, domain.BranchCacheEntry{
		Branch:    b.state.CurrentBranch,
		IsManual:  b.state.IsManualLocation,
		Timestamp: b.now().UTC(),
		Pincode:   b.state.Pincode,
		IsDefault: b.state.IsDefault,
	})
}

func cloneBranch(b *domain.Branch) *domain.Branch {
	if b == nil {
		return nil
	}
	c := *b
	if b.IsWithinRadius != nil {
		v := *b.IsWithinRadius
		c.IsWithinRadius = &v
	}
	return &c
}
