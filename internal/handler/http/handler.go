package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/store"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

// StorefrontHandler serves the per-device storefront state API.
type StorefrontHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewStorefrontHandler creates a new storefront HTTP handler.
func NewStorefrontHandler(sessions *session.Manager, logger *slog.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// session resolves the caller's session. On failure the response is already
// written and nil is returned.
func (h *StorefrontHandler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	s, err := h.sessions.Get(r.Context(), middleware.DeviceIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return nil
	}
	return s
}

// writeError translates store and domain errors into AppErrors first.
func (h *StorefrontHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrVariantNotFound):
		err = apperrors.NotFound("variant", "requested")
	case errors.Is(err, store.ErrInvalidItem):
		err = apperrors.InvalidInput(err.Error())
	case errors.Is(err, store.ErrToggleInFlight):
		err = apperrors.Conflict(err.Error())
	case errors.Is(err, store.ErrInvalidPincode):
		err = apperrors.InvalidInput(store.MsgPincodeInvalid)
	}
	httputil.WriteError(w, r, err, h.logger)
}
