package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/location"
)

// --- Fake Storage ---

// memStorage applies writes synchronously so tests can read them back.
type memStorage struct {
	mu      sync.Mutex
	data    map[string]string
	readErr error
	saves   int
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string]string)}
}

func (m *memStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", false, m.readErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStorage) Save(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.saves++
}

func (m *memStorage) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memStorage) put(t *testing.T, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	m.Save(key, string(raw))
}

func (m *memStorage) decode(t *testing.T, key string, v any) {
	t.Helper()
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	require.True(t, ok, "key %s not persisted", key)
	require.NoError(t, json.Unmarshal([]byte(raw), v))
}

// --- Mock Wishlist Remote ---

type mockWishlistRemote struct {
	mock.Mock
}

func (m *mockWishlistRemote) GetWishlist(ctx context.Context, branchID string) ([]domain.Product, error) {
	args := m.Called(ctx, branchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockWishlistRemote) Toggle(ctx context.Context, productID, inventoryID string) error {
	args := m.Called(ctx, productID, inventoryID)
	return args.Error(0)
}

// --- Mock Branch Lookup ---

type mockBranchLookup struct {
	mock.Mock
}

func (m *mockBranchLookup) Nearest(ctx context.Context, lat, lng float64) (*domain.Branch, error) {
	args := m.Called(ctx, lat, lng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Branch), args.Error(1)
}

func (m *mockBranchLookup) ByPincode(ctx context.Context, pincode string) (*domain.Branch, error) {
	args := m.Called(ctx, pincode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Branch), args.Error(1)
}

func (m *mockBranchLookup) Default(ctx context.Context) (*domain.Branch, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Branch), args.Error(1)
}

// --- Fake device capabilities ---

type fakePermissions struct {
	check   location.PermissionStatus
	request location.PermissionStatus
	err     error
	block   bool
	asked   int
}

func (f *fakePermissions) Check(context.Context) (location.PermissionStatus, error) {
	return f.check, nil
}

func (f *fakePermissions) Request(ctx context.Context) (location.PermissionStatus, error) {
	f.asked++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.request, f.err
}

type fakeLocation struct {
	enabled   bool
	enableErr error
	coords    location.Coordinates
	fixErr    error
	hang      chan struct{}
}

func (f *fakeLocation) EnsureServiceEnabled(context.Context) (bool, error) {
	return f.enabled, f.enableErr
}

func (f *fakeLocation) CurrentPosition(context.Context) (location.Coordinates, error) {
	if f.hang != nil {
		<-f.hang
	}
	return f.coords, f.fixErr
}

var errBoom = errors.New("boom")

func boolPtr(b bool) *bool { return &b }

func int64Ptr(v int64) *int64 { return &v }

func variantProduct(id string, variantIDs ...string) domain.Product {
	p := domain.Product{ID: id, Name: "Product " + id, IsAvailable: true, Stock: 10}
	for _, vid := range variantIDs {
		p.Variants = append(p.Variants, domain.Variant{ID: vid, Name: vid, Stock: 5, IsAvailable: true})
	}
	return p
}
