package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httputil"
)

var errProductIDRequired = errors.New("product.id is required")

// SaveSubscriptionRequest is the JSON request body for PUT /subscriptions.
type SaveSubscriptionRequest struct {
	Product   domain.Product `json:"product"`
	VariantID string         `json:"variant_id" validate:"max=128"`
	Quantity  int            `json:"quantity" validate:"gte=0,lte=100"`
	Frequency string         `json:"frequency" validate:"required,oneof=daily alternate weekly monthly"`
	StartDate *time.Time     `json:"start_date"`
}

// SubscriptionsResponse lists the subscription cart.
type SubscriptionsResponse struct {
	Items        []domain.SubscriptionItem `json:"items"`
	MonthlyTotal int64                     `json:"monthly_total"`
}

// SaveSubscriptionResponse echoes the saved item and the toast shown.
type SaveSubscriptionResponse struct {
	Item  domain.SubscriptionItem `json:"item"`
	Toast domain.Toast            `json:"toast"`
}

// GetSubscriptions handles GET /api/v1/storefront/subscriptions
func (h *StorefrontHandler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	httputil.WriteData(w, http.StatusOK, SubscriptionsResponse{
		Items:        s.Subscriptions.Items(),
		MonthlyTotal: s.Subscriptions.MonthlyTotal(),
	})
}

// SaveSubscription handles PUT /api/v1/storefront/subscriptions
func (h *StorefrontHandler) SaveSubscription(w http.ResponseWriter, r *http.Request) {
	var req SaveSubscriptionRequest
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

	cp, err := domain.NewCartProduct(req.Product, req.VariantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item := domain.SubscriptionItem{
		Product:   cp,
		Quantity:  req.Quantity,
		Frequency: domain.Frequency(req.Frequency),
		StartDate: time.Now().UTC().Truncate(24 * time.Hour),
	}
	if req.StartDate != nil {
		item.StartDate = req.StartDate.UTC()
	}

	toast, err := s.SaveSubscription(item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, SaveSubscriptionResponse{Item: item, Toast: toast})
}

// RemoveSubscription handles DELETE /api/v1/storefront/subscriptions/{productId}
func (h *StorefrontHandler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.RemoveSubscription(chi.URLParam(r, "productId"))
	w.WriteHeader(http.StatusNoContent)
}

// ClearSubscriptions handles DELETE /api/v1/storefront/subscriptions
func (h *StorefrontHandler) ClearSubscriptions(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Subscriptions.Clear()
	w.WriteHeader(http.StatusNoContent)
}
