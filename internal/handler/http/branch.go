package http

import (
	"errors"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/location"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/store"
	"github.com/utafrali/storefront/pkg/httputil"
)

// PincodeRequest is the JSON request body for POST /branch/pincode.
type PincodeRequest struct {
	Pincode string `json:"pincode" validate:"required,pincode"`
}

// CoordinatesRequest is the JSON request body for POST /branch/coordinates.
type CoordinatesRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// GPSRequest is the device's report of the platform permission and GPS flow.
type GPSRequest struct {
	Permission     string                `json:"permission" validate:"omitempty,oneof=granted denied never_ask_again"`
	ServiceEnabled bool                  `json:"service_enabled"`
	Coordinates    *location.Coordinates `json:"coordinates"`
	FixError       string                `json:"fix_error" validate:"omitempty,oneof=timeout unavailable cancelled"`
}

// SetBranchRequest is the JSON request body for PUT /branch.
type SetBranchRequest struct {
	Branch   *domain.Branch `json:"branch"`
	IsManual bool           `json:"is_manual"`
}

// BranchResponse carries the resolution outcome and the resulting state.
// Resolution failures are not HTTP errors: they surface through State.
type BranchResponse struct {
	Branch       *domain.Branch    `json:"branch"`
	State        store.BranchState `json:"state"`
	OpenSettings bool              `json:"open_settings,omitempty"`
}

// GetBranch handles GET /api/v1/storefront/branch
func (h *StorefrontHandler) GetBranch(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	st := s.Branch.State()
	httputil.WriteData(w, http.StatusOK, BranchResponse{Branch: st.CurrentBranch, State: st})
}

// RequestGPS handles POST /api/v1/storefront/branch/gps
func (h *StorefrontHandler) RequestGPS(w http.ResponseWriter, r *http.Request) {
	var req GPSRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}

	b, openSettings, err := s.ResolveGPS(r.Context(), location.Report{
		Permission:     location.PermissionStatus(req.Permission),
		ServiceEnabled: req.ServiceEnabled,
		Coordinates:    req.Coordinates,
		FixError:       location.FixError(req.FixError),
	})
	h.writeBranch(w, r, s, b, openSettings, err)
}

// FetchBranchByPincode handles POST /api/v1/storefront/branch/pincode
func (h *StorefrontHandler) FetchBranchByPincode(w http.ResponseWriter, r *http.Request) {
	var req PincodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	b, err := s.FetchBranchByPincode(r.Context(), req.Pincode)
	h.writeBranch(w, r, s, b, false, err)
}

// FetchBranchByCoordinates handles POST /api/v1/storefront/branch/coordinates
func (h *StorefrontHandler) FetchBranchByCoordinates(w http.ResponseWriter, r *http.Request) {
	var req CoordinatesRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	b, err := s.FetchBranchByCoordinates(r.Context(), req.Latitude, req.Longitude)
	h.writeBranch(w, r, s, b, false, err)
}

// FetchDefaultBranch handles POST /api/v1/storefront/branch/default
func (h *StorefrontHandler) FetchDefaultBranch(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	b, err := s.FetchDefaultBranch(r.Context())
	h.writeBranch(w, r, s, b, false, err)
}

// SetBranch handles PUT /api/v1/storefront/branch
func (h *StorefrontHandler) SetBranch(w http.ResponseWriter, r *http.Request) {
	var req SetBranchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Branch != nil && req.Branch.ID == "" {
		httputil.WriteValidationError(w, errors.New("branch.id is required"))
		return
	}
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Branch.SetCurrent(req.Branch, req.IsManual)
	st := s.Branch.State()
	httputil.WriteData(w, http.StatusOK, BranchResponse{Branch: st.CurrentBranch, State: st})
}

// ClearBranch handles DELETE /api/v1/storefront/branch
func (h *StorefrontHandler) ClearBranch(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Branch.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// OpenLocationSettings handles POST /api/v1/storefront/branch/settings
func (h *StorefrontHandler) OpenLocationSettings(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	toast, err := s.OpenLocationSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]any{
		"open_settings": true,
		"toast":         toast,
	})
}

// writeBranch answers 200 with the branch state for every resolution outcome
// except an invalid pincode, which is a client error.
func (h *StorefrontHandler) writeBranch(w http.ResponseWriter, r *http.Request, s *session.Session, b *domain.Branch, openSettings bool, err error) {
	if errors.Is(err, store.ErrInvalidPincode) {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, BranchResponse{
		Branch:       b,
		State:        s.Branch.State(),
		OpenSettings: openSettings,
	})
}
