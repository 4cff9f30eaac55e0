package store

import (
	"strings"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Toast is the single-slot notification holder.
type Toast struct {
	mu      sync.RWMutex
	current domain.Toast
}

// NewToast returns a hidden toast slot.
func NewToast() *Toast {
	return &Toast{current: domain.Toast{Type: domain.ToastInfo}}
}

// Show replaces whatever is showing. An empty or info type is reclassified
// from the message text.
func (t *Toast) Show(message string, typ domain.ToastType) domain.Toast {
	if typ == "" || typ == domain.ToastInfo {
		typ = Classify(message)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = domain.Toast{Visible: true, Message: message, Type: typ}
	return t.current
}

// Hide clears visibility and keeps the last message and type.
func (t *Toast) Hide() {
	t.mu.Lock()
	t.current.Visible = false
	t.mu.Unlock()
}

// Current returns the slot contents.
func (t *Toast) Current() domain.Toast {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

var (
	successHints = []string{"wishlist", "added", "removed"}
	warningHints = []string{"stock", "limit", "out of"}
)

// Classify picks a toast type from message keywords. Success wins over warning.
func Classify(message string) domain.ToastType {
	lower := strings.ToLower(message)
	for _, h := range successHints {
		if strings.Contains(lower, h) {
			return domain.ToastSuccess
		}
	}
	for _, h := range warningHints {
		if strings.Contains(lower, h) {
			return domain.ToastWarning
		}
	}
	return domain.ToastInfo
}
