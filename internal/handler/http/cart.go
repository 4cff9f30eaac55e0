package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
)

// --- Request DTOs ---

// AddToCartRequest is the JSON request body for adding one unit to the cart.
type AddToCartRequest struct {
	Product   domain.Product `json:"product"`
	VariantID string         `json:"variant_id" validate:"max=128"`
}

// --- Response DTOs ---

// CartResponse is the cart view returned by cart endpoints.
type CartResponse struct {
	Items      []domain.CartItem `json:"items"`
	ItemCount  int               `json:"item_count"`
	TotalPrice int64             `json:"total_price"`
}

// CartLineResponse reports the quantity of one line.
type CartLineResponse struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Removed  bool   `json:"removed,omitempty"`
}

func cartView(s *session.Session) CartResponse {
	return CartResponse{
		Items:      s.Cart.Items(),
		ItemCount:  s.Cart.ItemCount(),
		TotalPrice: s.Cart.TotalPrice(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/storefront/cart
func (h *StorefrontHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	httputil.WriteData(w, http.StatusOK, cartView(s))
}

// AddToCart handles POST /api/v1/storefront/cart/items
func (h *StorefrontHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
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

	res, err := s.AddToCart(r.Context(), req.Product, req.VariantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// GetCartItem handles GET /api/v1/storefront/cart/items/{id}
func (h *StorefrontHandler) GetCartItem(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "id")
	httputil.WriteData(w, http.StatusOK, CartLineResponse{ID: id, Quantity: s.Cart.Quantity(id)})
}

// RemoveFromCart handles DELETE /api/v1/storefront/cart/items/{id}
func (h *StorefrontHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "id")
	removed := s.RemoveFromCart(r.Context(), id)
	httputil.WriteData(w, http.StatusOK, CartLineResponse{ID: id, Quantity: s.Cart.Quantity(id), Removed: removed})
}

// ClearCart handles DELETE /api/v1/storefront/cart
func (h *StorefrontHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.ClearCart(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
