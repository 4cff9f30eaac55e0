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
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/pkg/logger"
)

func newTestWishlist() (*Wishlist, *mockWishlistRemote, *memStorage) {
	remote := new(mockWishlistRemote)
	s := newMemStorage()
	return NewWishlist(remote, s, logger.Discard()), remote, s
}

func TestWishlist_AddPrependsAndDedupes(t *testing.T) {
	w, _, _ := newTestWishlist()

	assert.True(t, w.Add(variantProduct("p1")))
	assert.True(t, w.Add(variantProduct("p2", "v2a", "v2b")))
	assert.False(t, w.Add(variantProduct("p1")))

	entries := w.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "p2", entries[0].Product.ID)
	assert.Equal(t, "p1", entries[1].Product.ID)

	assert.True(t, w.Contains("p1"))
	assert.True(t, w.Contains("v2a"))
	// variant products are keyed by variant id only
	assert.False(t, w.Contains("p2"))
}

func TestWishlist_Remove(t *testing.T) {
	w, _, _ := newTestWishlist()
	w.Add(variantProduct("p1", "v1"))

	assert.False(t, w.Remove("p1"))
	assert.True(t, w.Remove("v1"))
	assert.Empty(t, w.Entries())
}

func TestWishlist_ToggleRoundTrip(t *testing.T) {
	w, remote, _ := newTestWishlist()
	p := variantProduct("p1")
	remote.On("Toggle", mock.Anything, "p1", "").Return(nil).Twice()

	res, err := w.Toggle(context.Background(), p, "")
	require.NoError(t, err)
	assert.False(t, res.WasFavorite)
	assert.False(t, res.RolledBack)
	assert.True(t, w.Contains("p1"))

	res, err = w.Toggle(context.Background(), p, "")
	require.NoError(t, err)
	assert.True(t, res.WasFavorite)
	assert.False(t, w.Contains("p1"))

	remote.AssertExpectations(t)
}

func TestWishlist_ToggleIsOptimistic(t *testing.T) {
	w, remote, _ := newTestWishlist()
	entered := make(chan struct{})
	release := make(chan struct{})
	remote.On("Toggle", mock.Anything, "p1", "").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Toggle(context.Background(), variantProduct("p1"), "")
	}()

	<-entered
	assert.True(t, w.Contains("p1"), "entry must be visible before the remote resolves")
	close(release)
	<-done
	assert.True(t, w.Contains("p1"))
}

func TestWishlist_ToggleRollsBackAdd(t *testing.T) {
	w, remote, s := newTestWishlist()
	before := testutil.ToFloat64(wishlistRollbacks)
	remote.On("Toggle", mock.Anything, "p1", "").Return(errBoom).Once()

	res, err := w.Toggle(context.Background(), variantProduct("p1"), "")
	require.NoError(t, err)
	assert.True(t, res.RolledBack)
	assert.False(t, res.WasFavorite)
	assert.False(t, w.Contains("p1"))
	assert.Equal(t, before+1, testutil.ToFloat64(wishlistRollbacks))

	var snap wishlistSnapshot
	s.decode(t, storage.KeyWishlist, &snap)
	assert.Empty(t, snap.Entries)
}

func TestWishlist_ToggleRollsBackRemoveInPlace(t *testing.T) {
	w, remote, _ := newTestWishlist()
	w.Add(variantProduct("c"))
	w.Add(variantProduct("b"))
	w.Add(variantProduct("a"))
	remote.On("Toggle", mock.Anything, "b", "").Return(errBoom).Once()

	res, err := w.Toggle(context.Background(), variantProduct("b"), "")
	require.NoError(t, err)
	assert.True(t, res.WasFavorite)
	assert.True(t, res.RolledBack)

	entries := w.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		entries[0].Product.ID, entries[1].Product.ID, entries[2].Product.ID,
	})
}

func TestWishlist_ToggleVariantScoped(t *testing.T) {
	w, remote, _ := newTestWishlist()
	p := variantProduct("p1", "v1", "v2", "v3")
	remote.On("Toggle", mock.Anything, "p1", "v2").Return(nil).Once()

	res, err := w.Toggle(context.Background(), p, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Key)

	entries := w.Entries()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Product.Variants, 1)
	assert.Equal(t, "v2", entries[0].Product.Variants[0].ID)
	assert.True(t, w.Contains("v2"))
	assert.False(t, w.Contains("v1"))
	// caller's product is untouched
	assert.Len(t, p.Variants, 3)
}

func TestWishlist_ToggleVariantScopedRollback(t *testing.T) {
	w, remote, _ := newTestWishlist()
	p := variantProduct("p1", "v1", "v2", "v3")
	remote.On("Toggle", mock.Anything, "p1", "v3").Return(nil).Once()
	_, err := w.Toggle(context.Background(), p, "v3")
	require.NoError(t, err)

	remote.On("Toggle", mock.Anything, "p1", "v3").Return(errBoom).Once()
	res, err := w.Toggle(context.Background(), p, "v3")
	require.NoError(t, err)
	assert.True(t, res.RolledBack)

	entries := w.Entries()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Product.Variants, 1)
	assert.Equal(t, "v3", entries[0].Product.Variants[0].ID)
}

func TestWishlist_ToggleUnknownVariant(t *testing.T) {
	w, remote, _ := newTestWishlist()

	_, err := w.Toggle(context.Background(), variantProduct("p1", "v1"), "nope")
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
	assert.Empty(t, w.Entries())
	remote.AssertNotCalled(t, "Toggle", mock.Anything, mock.Anything, mock.Anything)
}

func TestWishlist_SecondToggleRejectedWhileInFlight(t *testing.T) {
	w, remote, _ := newTestWishlist()
	entered := make(chan struct{})
	release := make(chan struct{})
	remote.On("Toggle", mock.Anything, "p1", "").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Toggle(context.Background(), variantProduct("p1"), "")
	}()
	<-entered

	res, err := w.Toggle(context.Background(), variantProduct("p1"), "")
	assert.ErrorIs(t, err, ErrToggleInFlight)
	assert.Equal(t, "p1", res.Key)
	assert.True(t, w.Contains("p1"), "optimistic state untouched")

	close(release)
	<-done

	remote.On("Toggle", mock.Anything, "p1", "").Return(nil).Once()
	res, err = w.Toggle(context.Background(), variantProduct("p1"), "")
	require.NoError(t, err)
	assert.True(t, res.WasFavorite)
}

func TestWishlist_SyncReplaces(t *testing.T) {
	w, remote, _ := newTestWishlist()
	w.Add(variantProduct("old"))
	remote.On("GetWishlist", mock.Anything, "b1").
		Return([]domain.Product{variantProduct("n1"), variantProduct("n2", "v"), variantProduct("n1")}, nil).Once()

	require.NoError(t, w.Sync(context.Background(), "b1"))

	entries := w.Entries()
	require.Len(t, entries, 2)
	assert.False(t, w.Contains("old"))
	assert.True(t, w.Contains("n1"))
	assert.True(t, w.Contains("v"))
}

func TestWishlist_SyncKeepsLocalVariantScope(t *testing.T) {
	w, remote, _ := newTestWishlist()
	shirt := variantProduct("shirt", "s", "m", "l")
	medium, err := shirt.WithOnlyVariant("m")
	require.NoError(t, err)
	large, err := shirt.WithOnlyVariant("l")
	require.NoError(t, err)
	w.Add(medium)
	w.Add(large)
	remote.On("GetWishlist", mock.Anything, "b1").
		Return([]domain.Product{shirt, variantProduct("mug", "red", "blue")}, nil).Once()

	require.NoError(t, w.Sync(context.Background(), "b1"))

	assert.True(t, w.Contains("m"))
	assert.True(t, w.Contains("l"))
	assert.False(t, w.Contains("s"), "an unscoped variant list is not collapsed to its first variant")
	assert.True(t, w.Contains("red"), "products with no local scope keep the remote default")
	require.Len(t, w.Entries(), 3)
	for _, e := range w.Entries() {
		if e.Product.ID == "shirt" {
			assert.Len(t, e.Product.Variants, 1)
		}
	}
}

func TestWishlist_SyncFailureKeepsLocal(t *testing.T) {
	w, remote, _ := newTestWishlist()
	w.Add(variantProduct("keep"))
	remote.On("GetWishlist", mock.Anything, "").Return(nil, errBoom).Once()

	err := w.Sync(context.Background(), "")
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, w.Contains("keep"))
}

func TestWishlist_SyncPreservesInFlightToggle(t *testing.T) {
	w, remote, _ := newTestWishlist()
	entered := make(chan struct{})
	release := make(chan struct{})
	remote.On("Toggle", mock.Anything, "fav", "").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil).Once()
	remote.On("GetWishlist", mock.Anything, "").Return([]domain.Product{variantProduct("other")}, nil).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Toggle(context.Background(), variantProduct("fav"), "")
	}()
	<-entered

	require.NoError(t, w.Sync(context.Background(), ""))
	assert.True(t, w.Contains("fav"))
	assert.True(t, w.Contains("other"))

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("toggle did not finish")
	}
}

func TestWishlist_PersistsAndLoads(t *testing.T) {
	w, _, s := newTestWishlist()
	w.Add(variantProduct("p1"))
	w.Add(variantProduct("p2", "v2"))

	restored := NewWishlist(new(mockWishlistRemote), s, logger.Discard())
	restored.Load(context.Background())

	entries := restored.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "v2", entries[0].Key())
	assert.Equal(t, "p1", entries[1].Key())
}

func TestWishlist_Clear(t *testing.T) {
	w, _, _ := newTestWishlist()
	w.Add(variantProduct("p1"))
	w.Clear()
	assert.Empty(t, w.Entries())
}
