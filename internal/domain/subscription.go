package domain

import (
	"fmt"
	"time"
)

// Frequency is how often a subscription delivers.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyAlternate Frequency = "alternate"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
)

// ParseFrequency validates s against the closed set of frequencies.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyAlternate, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// DeliveriesPerMonth is the display-only multiplier used for monthly cost
// projections. It is not billing data.
func (f Frequency) DeliveriesPerMonth() int64 {
	switch f {
	case FrequencyDaily:
		return 30
	case FrequencyAlternate:
		return 15
	case FrequencyWeekly:
		return 4
	case FrequencyMonthly:
		return 1
	}
	return 0
}

// SubscriptionItem is a recurring-delivery configuration for one product.
// Quantity 0 marks an item pending removal and is never persisted.
type SubscriptionItem struct {
	Product   CartProduct `json:"product"`
	Quantity  int         `json:"quantity"`
	Frequency Frequency   `json:"frequency"`
	StartDate time.Time   `json:"start_date"`
}

// MonthlyCost projects the monthly spend for display.
func (s SubscriptionItem) MonthlyCost() int64 {
	return s.Product.EffectivePrice() * int64(s.Quantity) * s.Frequency.DeliveriesPerMonth()
}
