package domain

// ToastType is the severity of a user notification.
type ToastType string

const (
	ToastInfo    ToastType = "info"
	ToastSuccess ToastType = "success"
	ToastWarning ToastType = "warning"
	ToastError   ToastType = "error"
)

// Toast is the single active notification slot.
type Toast struct {
	Visible bool      `json:"visible"`
	Message string    `json:"message"`
	Type    ToastType `json:"type"`
}
