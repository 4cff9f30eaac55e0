// Package client talks to the remote catalog services the storefront stores
// reconcile against.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const wishlistService = "wishlist"

// WishlistClient calls the remote wishlist service.
type WishlistClient struct {
	doer    httpclient.Doer
	baseURL string
	userID  string
}

// NewWishlistClient creates a client rooted at baseURL.
func NewWishlistClient(doer httpclient.Doer, baseURL string) *WishlistClient {
	return &WishlistClient{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// ForUser returns a copy that identifies itself as userID on every call.
func (c *WishlistClient) ForUser(userID string) *WishlistClient {
	cp := *c
	cp.userID = userID
	return &cp
}

type toggleWishlistRequest struct {
	ProductID   string `json:"product_id"`
	InventoryID string `json:"inventory_id,omitempty"`
}

// GetWishlist returns the remote wishlist, optionally scoped to a branch.
func (c *WishlistClient) GetWishlist(ctx context.Context, branchID string) ([]domain.Product, error) {
	u := c.baseURL + "/api/v1/wishlist"
	if branchID != "" {
		u += "?" + url.Values{"branch_id": {branchID}}.Encode()
	}
	products, err := httpclient.DoJSON[[]domain.Product](ctx, c.doer, wishlistService, http.MethodGet, u, c.header(), nil)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Toggle flips the remote favourite state for a product, or for one of its
// variants when inventoryID is set.
func (c *WishlistClient) Toggle(ctx context.Context, productID, inventoryID string) error {
	_, err := httpclient.DoJSON[struct{}](ctx, c.doer, wishlistService, http.MethodPost,
		c.baseURL+"/api/v1/wishlist/toggle", c.header(),
		toggleWishlistRequest{ProductID: productID, InventoryID: inventoryID})
	return err
}

func (c *WishlistClient) header() http.Header {
	h := http.Header{}
	if c.userID != "" {
		h.Set("X-User-ID", c.userID)
	}
	return h
}
