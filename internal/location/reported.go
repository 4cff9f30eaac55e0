package location

import (
	"context"
	"sync"
)

// FixError names a position-fix failure reported by the device.
type FixError string

const (
	FixErrorNone        FixError = ""
	FixErrorTimeout     FixError = "timeout"
	FixErrorUnavailable FixError = "unavailable"
	FixErrorCancelled   FixError = "cancelled"
)

// Report is what a device sends after running the platform permission and
// GPS flow itself.
type Report struct {
	Permission     PermissionStatus `json:"permission"`
	ServiceEnabled bool             `json:"service_enabled"`
	Coordinates    *Coordinates     `json:"coordinates,omitempty"`
	FixError       FixError         `json:"fix_error,omitempty"`
}

// Reported implements PermissionProvider, LocationProvider and
// SettingsLauncher from a device Report. It remembers whether the settings
// deep link was requested so the caller can instruct the device to open it.
type Reported struct {
	report Report

	mu                sync.Mutex
	settingsRequested bool
}

// NewReported wraps a device report.
func NewReported(r Report) *Reported {
	if r.Permission == "" {
		r.Permission = PermissionDenied
	}
	return &Reported{report: r}
}

func (r *Reported) Check(context.Context) (PermissionStatus, error) {
	return r.report.Permission, nil
}

// Request returns the reported outcome; the device already prompted the user.
func (r *Reported) Request(context.Context) (PermissionStatus, error) {
	return r.report.Permission, nil
}

func (r *Reported) EnsureServiceEnabled(context.Context) (bool, error) {
	return r.report.ServiceEnabled, nil
}

func (r *Reported) CurrentPosition(ctx context.Context) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, ErrTimeout
	}
	switch r.report.FixError {
	case FixErrorTimeout:
		return Coordinates{}, ErrTimeout
	case FixErrorCancelled:
		return Coordinates{}, ErrCancelled
	case FixErrorUnavailable:
		return Coordinates{}, ErrUnavailable
	}
	if r.report.Coordinates == nil {
		return Coordinates{}, ErrUnavailable
	}
	return *r.report.Coordinates, nil
}

func (r *Reported) OpenSettings(context.Context) error {
	r.mu.Lock()
	r.settingsRequested = true
	r.mu.Unlock()
	return nil
}

// SettingsRequested reports whether OpenSettings was called.
func (r *Reported) SettingsRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settingsRequested
}

// Deferred is a SettingsLauncher that only records the request; the HTTP
// surface answers with an "open settings" instruction instead.
type Deferred struct {
	mu        sync.Mutex
	requested int
}

func (d *Deferred) OpenSettings(context.Context) error {
	d.mu.Lock()
	d.requested++
	d.mu.Unlock()
	return nil
}

// Requested returns how many times settings were requested.
func (d *Deferred) Requested() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requested
}
