package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/location"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/pkg/logger"
)

var testCoords = location.Coordinates{Latitude: 12.97, Longitude: 77.59}

func grantedDevice() Device {
	return Device{
		Permissions: &fakePermissions{check: location.PermissionGranted},
		Location:    &fakeLocation{enabled: true, coords: testCoords},
		Settings:    &location.Deferred{},
	}
}

func newTestBranch(dev Device) (*Branch, *mockBranchLookup, *memStorage) {
	lookup := new(mockBranchLookup)
	s := newMemStorage()
	cfg := DefaultBranchConfig()
	cfg.PermissionTimeout = 50 * time.Millisecond
	cfg.FixTimeout = 50 * time.Millisecond
	b := NewBranch(lookup, dev, cfg, s, logger.Discard())
	b.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return b, lookup, s
}

func TestBranch_InitializeFromCache(t *testing.T) {
	b, lookup, s := newTestBranch(grantedDevice())
	s.put(t, storage.KeyBranchCache, domain.BranchCacheEntry{
		Branch:   &domain.Branch{ID: "b1", Name: "Koramangala", IsWithinRadius: boolPtr(false)},
		IsManual: true,
		Pincode:  "560034",
	})

	b.Initialize(context.Background())

	st := b.State()
	assert.True(t, st.Initialized)
	require.NotNil(t, st.CurrentBranch)
	assert.Equal(t, "b1", st.CurrentBranch.ID)
	assert.True(t, st.IsManualLocation)
	assert.False(t, st.IsServiceAvailable)
	assert.Equal(t, "560034", st.Pincode)
	lookup.AssertNotCalled(t, "Nearest", mock.Anything, mock.Anything, mock.Anything)
	lookup.AssertNotCalled(t, "Default", mock.Anything)
}

func TestBranch_InitializeIsIdempotent(t *testing.T) {
	b, _, s := newTestBranch(grantedDevice())
	b.Initialize(context.Background())

	s.put(t, storage.KeyBranchCache, domain.BranchCacheEntry{Branch: &domain.Branch{ID: "late"}})
	b.Initialize(context.Background())

	st := b.State()
	assert.True(t, st.Initialized)
	assert.Nil(t, st.CurrentBranch)
}

func TestBranch_InitializeReadErrorRetries(t *testing.T) {
	b, _, s := newTestBranch(grantedDevice())
	s.put(t, storage.KeyBranchCache, domain.BranchCacheEntry{Branch: &domain.Branch{ID: "b1"}})
	s.readErr = errBoom

	err := b.Initialize(context.Background())

	require.ErrorIs(t, err, errBoom)
	assert.False(t, b.State().Initialized)

	s.readErr = nil
	require.NoError(t, b.Initialize(context.Background()))
	st := b.State()
	assert.True(t, st.Initialized)
	require.NotNil(t, st.CurrentBranch)
	assert.Equal(t, "b1", st.CurrentBranch.ID)
}

func TestBranch_InitializeWithCorruptCache(t *testing.T) {
	b, _, s := newTestBranch(grantedDevice())
	s.Save(storage.KeyBranchCache, "garbage")

	b.Initialize(context.Background())
	st := b.State()
	assert.True(t, st.Initialized)
	assert.Nil(t, st.CurrentBranch)
	assert.Equal(t, domain.LocationIdle, st.LocationStatus)
}

func TestBranch_GPSResolves(t *testing.T) {
	b, lookup, s := newTestBranch(grantedDevice())
	lookup.On("Nearest", mock.Anything, testCoords.Latitude, testCoords.Longitude).
		Return(&domain.Branch{ID: "b1", IsWithinRadius: boolPtr(true)}, nil).Once()
	before := testutil.ToFloat64(branchResolutions.WithLabelValues(SourceGPS, "resolved"))

	got, err := b.RequestGPSAndFetchBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)

	st := b.State()
	assert.Equal(t, domain.LocationGranted, st.LocationStatus)
	assert.False(t, st.IsManualLocation)
	assert.True(t, st.IsServiceAvailable)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, before+1, testutil.ToFloat64(branchResolutions.WithLabelValues(SourceGPS, "resolved")))

	var entry domain.BranchCacheEntry
	s.decode(t, storage.KeyBranchCache, &entry)
	assert.Equal(t, "b1", entry.Branch.ID)
	assert.False(t, entry.IsManual)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), entry.Timestamp)
}

func TestBranch_GPSRequestsPermission(t *testing.T) {
	perms := &fakePermissions{check: location.PermissionDenied, request: location.PermissionGranted}
	dev := grantedDevice()
	dev.Permissions = perms
	b, lookup, _ := newTestBranch(dev)
	lookup.On("Nearest", mock.Anything, mock.Anything, mock.Anything).Return(&domain.Branch{ID: "b1"}, nil).Once()

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, perms.asked)
}

func TestBranch_GPSSoftDenied(t *testing.T) {
	dev := grantedDevice()
	dev.Permissions = &fakePermissions{check: location.PermissionDenied, request: location.PermissionDenied}
	b, lookup, _ := newTestBranch(dev)

	got, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	st := b.State()
	assert.Equal(t, domain.LocationDenied, st.LocationStatus)
	assert.Equal(t, PromptNone, st.Prompt)
	assert.False(t, st.Loading)
	lookup.AssertNotCalled(t, "Nearest", mock.Anything, mock.Anything, mock.Anything)
}

func TestBranch_GPSNeverAskAgain(t *testing.T) {
	dev := grantedDevice()
	dev.Permissions = &fakePermissions{check: location.PermissionDenied, request: location.PermissionNeverAskAgain}
	b, _, _ := newTestBranch(dev)

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, ErrPermissionBlocked)
	st := b.State()
	assert.Equal(t, domain.LocationDenied, st.LocationStatus)
	assert.Equal(t, PromptPermission, st.Prompt)
}

func TestBranch_GPSPermissionTimeoutIsBlocked(t *testing.T) {
	dev := grantedDevice()
	dev.Permissions = &fakePermissions{check: location.PermissionDenied, block: true}
	b, _, _ := newTestBranch(dev)

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, ErrPermissionBlocked)
	assert.Equal(t, PromptPermission, b.State().Prompt)
}

func TestBranch_GPSServiceDeclined(t *testing.T) {
	dev := grantedDevice()
	dev.Location = &fakeLocation{enabled: false}
	b, _, _ := newTestBranch(dev)

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, ErrLocationDisabled)
	st := b.State()
	assert.Equal(t, domain.LocationDisabled, st.LocationStatus)
	assert.Equal(t, PromptLocationService, st.Prompt)
}

func TestBranch_GPSFixFailures(t *testing.T) {
	tests := []struct {
		name       string
		fixErr     error
		wantErr    error
		wantStatus domain.LocationStatus
		wantPrompt SettingsPrompt
	}{
		{"timeout", location.ErrTimeout, ErrLocationTimeout, domain.LocationUnavailable, PromptNone},
		{"cancelled", location.ErrCancelled, ErrLocationDisabled, domain.LocationDisabled, PromptLocationService},
		{"unavailable", location.ErrUnavailable, ErrLocationDisabled, domain.LocationDisabled, PromptLocationService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := grantedDevice()
			dev.Location = &fakeLocation{enabled: true, fixErr: tt.fixErr}
			b, _, _ := newTestBranch(dev)

			_, err := b.RequestGPSAndFetchBranch(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			st := b.State()
			assert.Equal(t, tt.wantStatus, st.LocationStatus)
			assert.Equal(t, tt.wantPrompt, st.Prompt)
			assert.Empty(t, st.Error)
			assert.False(t, st.Loading)
		})
	}
}

func TestBranch_GPSOtherFixErrorSetsGenericMessage(t *testing.T) {
	dev := grantedDevice()
	dev.Location = &fakeLocation{enabled: true, fixErr: errBoom}
	b, _, _ := newTestBranch(dev)

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, MsgLocationFailed, b.State().Error)
}

func TestBranch_GPSTimeoutKeepsResolvedBranch(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	dev := grantedDevice()
	loc := &fakeLocation{enabled: true, coords: testCoords}
	dev.Location = loc
	b, lookup, _ := newTestBranch(dev)
	lookup.On("Nearest", mock.Anything, mock.Anything, mock.Anything).Return(&domain.Branch{ID: "b1"}, nil).Once()

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	require.NoError(t, err)

	loc.hang = hang
	_, err = b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, ErrLocationTimeout)

	st := b.State()
	require.NotNil(t, st.CurrentBranch)
	assert.Equal(t, "b1", st.CurrentBranch.ID)
	assert.Equal(t, domain.LocationUnavailable, st.LocationStatus)
}

func TestBranch_GPSLookupFailureKeepsResolvedBranch(t *testing.T) {
	b, lookup, _ := newTestBranch(grantedDevice())
	b.SetCurrent(&domain.Branch{ID: "existing"}, true)
	lookup.On("Nearest", mock.Anything, mock.Anything, mock.Anything).Return(nil, errBoom).Once()

	_, err := b.RequestGPSAndFetchBranch(context.Background())
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.ErrorIs(t, err, errBoom)

	st := b.State()
	assert.Equal(t, "existing", st.CurrentBranch.ID)
	assert.Equal(t, MsgBranchNotFound, st.Error)
}

func TestBranch_RequestGPSWithReportedDevice(t *testing.T) {
	b, lookup, _ := newTestBranch(Device{})
	lookup.On("Nearest", mock.Anything, 1.5, 2.5).Return(&domain.Branch{ID: "r1"}, nil).Once()

	reported := location.NewReported(location.Report{
		Permission:     location.PermissionGranted,
		ServiceEnabled: true,
		Coordinates:    &location.Coordinates{Latitude: 1.5, Longitude: 2.5},
	})
	got, err := b.RequestGPSWith(context.Background(), Device{
		Permissions: reported, Location: reported, Settings: reported,
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

func TestBranch_FetchByPincode(t *testing.T) {
	b, lookup, s := newTestBranch(grantedDevice())
	lookup.On("ByPincode", mock.Anything, "560034").
		Return(&domain.Branch{ID: "b2", IsWithinRadius: boolPtr(true)}, nil).Once()

	got, err := b.FetchByPincode(context.Background(), "560034")
	require.NoError(t, err)
	assert.Equal(t, "b2", got.ID)

	st := b.State()
	assert.True(t, st.IsManualLocation)
	assert.Equal(t, "560034", st.Pincode)

	var entry domain.BranchCacheEntry
	s.decode(t, storage.KeyBranchCache, &entry)
	assert.True(t, entry.IsManual)
	assert.Equal(t, "560034", entry.Pincode)
}

func TestBranch_FetchByPincodeInvalid(t *testing.T) {
	b, lookup, _ := newTestBranch(grantedDevice())

	_, err := b.FetchByPincode(context.Background(), "12ab")
	assert.ErrorIs(t, err, ErrInvalidPincode)
	assert.Equal(t, MsgPincodeInvalid, b.State().Error)
	lookup.AssertNotCalled(t, "ByPincode", mock.Anything, mock.Anything)
}

func TestBranch_FetchByPincodeFailureKeepsBranch(t *testing.T) {
	b, lookup, _ := newTestBranch(grantedDevice())
	b.SetCurrent(&domain.Branch{ID: "existing"}, false)
	lookup.On("ByPincode", mock.Anything, "110001").Return(nil, errBoom).Once()

	_, err := b.FetchByPincode(context.Background(), "110001")
	assert.ErrorIs(t, err, ErrLookupFailed)

	st := b.State()
	assert.Equal(t, "existing", st.CurrentBranch.ID)
	assert.Equal(t, MsgPincodeNotFound, st.Error)
	assert.False(t, st.Loading)
}

func TestBranch_FetchByCoordinates(t *testing.T) {
	b, lookup, _ := newTestBranch(Device{})
	lookup.On("Nearest", mock.Anything, 10.0, 20.0).
		Return(&domain.Branch{ID: "b3", IsWithinRadius: boolPtr(false)}, nil).Once()

	_, err := b.FetchByCoordinates(context.Background(), 10, 20)
	require.NoError(t, err)

	st := b.State()
	assert.True(t, st.IsManualLocation)
	assert.False(t, st.IsServiceAvailable)
	assert.Equal(t, domain.LocationIdle, st.LocationStatus)
}

func TestBranch_FetchDefaultAlwaysAvailable(t *testing.T) {
	b, lookup, _ := newTestBranch(Device{})
	lookup.On("Default", mock.Anything).
		Return(&domain.Branch{ID: "d", IsWithinRadius: boolPtr(false)}, nil).Once()

	_, err := b.FetchDefault(context.Background())
	require.NoError(t, err)

	st := b.State()
	assert.True(t, st.IsServiceAvailable)
	assert.True(t, st.IsManualLocation)
	assert.True(t, st.IsDefault)
}

func TestBranch_FetchDefaultNilBranch(t *testing.T) {
	b, lookup, _ := newTestBranch(Device{})
	lookup.On("Default", mock.Anything).Return(nil, nil).Once()

	_, err := b.FetchDefault(context.Background())
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, MsgDefaultNotLoaded, b.State().Error)
}

func TestBranch_SetCurrent(t *testing.T) {
	b, _, s := newTestBranch(Device{})

	b.SetCurrent(nil, false)
	assert.False(t, s.has(storage.KeyBranchCache))

	b.SetCurrent(&domain.Branch{ID: "x", IsWithinRadius: boolPtr(false)}, true)
	st := b.State()
	assert.False(t, st.IsServiceAvailable)
	assert.True(t, st.IsManualLocation)
	assert.True(t, s.has(storage.KeyBranchCache))
}

func TestBranch_StateIsACopy(t *testing.T) {
	b, _, _ := newTestBranch(Device{})
	b.SetCurrent(&domain.Branch{ID: "x", IsWithinRadius: boolPtr(true)}, false)

	st := b.State()
	*st.CurrentBranch.IsWithinRadius = false
	st.CurrentBranch.ID = "mutated"

	again := b.State()
	assert.Equal(t, "x", again.CurrentBranch.ID)
	assert.True(t, *again.CurrentBranch.IsWithinRadius)
}

func TestBranch_Clear(t *testing.T) {
	b, _, s := newTestBranch(Device{})
	b.Initialize(context.Background())
	b.SetCurrent(&domain.Branch{ID: "x"}, true)

	b.Clear(context.Background())

	st := b.State()
	assert.Nil(t, st.CurrentBranch)
	assert.Equal(t, domain.LocationIdle, st.LocationStatus)
	assert.True(t, st.Initialized)
	assert.False(t, s.has(storage.KeyBranchCache))
}

func TestBranch_OpenLocationSettings(t *testing.T) {
	settings := &location.Deferred{}
	b, _, _ := newTestBranch(Device{Settings: settings})

	require.NoError(t, b.OpenLocationSettings(context.Background()))
	assert.Equal(t, 1, settings.Requested())

	bare, _, _ := newTestBranch(Device{})
	assert.NoError(t, bare.OpenLocationSettings(context.Background()))
}
