package http

import (
	"net/http"

	"github.com/utafrali/storefront/pkg/httputil"
)

// GetToast handles GET /api/v1/storefront/toast
func (h *StorefrontHandler) GetToast(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Toast.Current())
}

// HideToast handles DELETE /api/v1/storefront/toast
func (h *StorefrontHandler) HideToast(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Toast.Hide()
	httputil.WriteData(w, http.StatusOK, s.Toast.Current())
}
