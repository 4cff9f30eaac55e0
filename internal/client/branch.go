package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const branchService = "branch"

// BranchClient resolves serving branches.
type BranchClient struct {
	doer    httpclient.Doer
	baseURL string
}

// NewBranchClient creates a client rooted at baseURL.
func NewBranchClient(doer httpclient.Doer, baseURL string) *BranchClient {
	return &BranchClient{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Nearest returns the branch closest to the coordinate.
func (c *BranchClient) Nearest(ctx context.Context, lat, lng float64) (*domain.Branch, error) {
	q := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lng": {strconv.FormatFloat(lng, 'f', -1, 64)},
	}
	return c.get(ctx, "/api/v1/branches/nearest?"+q.Encode())
}

// ByPincode returns the branch serving a postal code.
func (c *BranchClient) ByPincode(ctx context.Context, pincode string) (*domain.Branch, error) {
	return c.get(ctx, "/api/v1/branches/pincode/"+url.PathEscape(pincode))
}

// Default returns the fallback branch used without any location context.
func (c *BranchClient) Default(ctx context.Context) (*domain.Branch, error) {
	return c.get(ctx, "/api/v1/branches/default")
}

func (c *BranchClient) get(ctx context.Context, path string) (*domain.Branch, error) {
	b, err := httpclient.DoJSON[*domain.Branch](ctx, c.doer, branchService, http.MethodGet, c.baseURL+path, nil, nil)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errEmptyBranch
	}
	return b, nil
}
