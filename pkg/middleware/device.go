package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const deviceIDKey contextKeyType = "device_id"

// DeviceIDHeader carries the install-scoped identifier of the calling device.
const DeviceIDHeader = "X-Device-ID"

const maxDeviceIDLen = 128

// RequireDeviceID rejects requests without a usable X-Device-ID header and
// stores the identifier in context for downstream handlers.
func RequireDeviceID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(DeviceIDHeader))
			if id == "" {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+DeviceIDHeader+" header")
				return
			}
			if len(id) > maxDeviceIDLen || strings.ContainsAny(id, " \t\r\n/") {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid "+DeviceIDHeader+" header")
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext extracts the device ID set by RequireDeviceID.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": msg,
		},
	})
}
