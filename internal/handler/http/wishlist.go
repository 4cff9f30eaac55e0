package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/store"
	"github.com/utafrali/storefront/pkg/httputil"
)

// ToggleWishlistRequest is the JSON request body for POST /wishlist/toggle.
type ToggleWishlistRequest struct {
	Product   domain.Product `json:"product"`
	VariantID string         `json:"variant_id" validate:"max=128"`
}

// WishlistResponse lists the wishlist entries.
type WishlistResponse struct {
	Entries []domain.WishlistEntry `json:"entries"`
	// Stale is set when a sync failed and the local entries were kept.
	Stale bool `json:"stale,omitempty"`
}

// WishlistMembershipResponse answers GET /wishlist/{id}.
type WishlistMembershipResponse struct {
	ID         string `json:"id"`
	InWishlist bool   `json:"in_wishlist"`
}

// ToggleWishlistResponse reports the toggle outcome and the toast shown.
type ToggleWishlistResponse struct {
	Result     store.ToggleResult `json:"result"`
	InWishlist bool               `json:"in_wishlist"`
	Toast      domain.Toast       `json:"toast"`
}

// GetWishlist handles GET /api/v1/storefront/wishlist
func (h *StorefrontHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	httputil.WriteData(w, http.StatusOK, WishlistResponse{Entries: s.Wishlist.Entries()})
}

// InWishlist handles GET /api/v1/storefront/wishlist/{id}
func (h *StorefrontHandler) InWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "id")
	httputil.WriteData(w, http.StatusOK, WishlistMembershipResponse{ID: id, InWishlist: s.Wishlist.Contains(id)})
}

// ToggleWishlist handles POST /api/v1/storefront/wishlist/toggle
func (h *StorefrontHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	var req ToggleWishlistRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Product.ID == "" {
		httputil.WriteValidationError(w, errProductIDRequired)
		return
	}

	s := h.session(w, r)
	if s == nil {
		return
	}

	res, toast, err := s.ToggleWishlist(r.Context(), req.Product, req.VariantID)
	if err != nil && !errors.Is(err, store.ErrToggleInFlight) {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusConflict, httputil.Response{
			Data:  ToggleWishlistResponse{Result: res, InWishlist: s.Wishlist.Contains(res.Key), Toast: toast},
			Error: &httputil.ErrorResponse{Code: "CONFLICT", Message: err.Error()},
		})
		return
	}

	httputil.WriteData(w, http.StatusOK, ToggleWishlistResponse{
		Result:     res,
		InWishlist: s.Wishlist.Contains(res.Key),
		Toast:      toast,
	})
}

// SyncWishlist handles POST /api/v1/storefront/wishlist/sync
func (h *StorefrontHandler) SyncWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	err := s.SyncWishlist(r.Context())
	httputil.WriteData(w, http.StatusOK, WishlistResponse{Entries: s.Wishlist.Entries(), Stale: err != nil})
}

// RemoveFromWishlist handles DELETE /api/v1/storefront/wishlist/{id}
func (h *StorefrontHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Wishlist.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// ClearWishlist handles DELETE /api/v1/storefront/wishlist
func (h *StorefrontHandler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Wishlist.Clear()
	w.WriteHeader(http.StatusNoContent)
}
