package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ovchat/internal/manager"
	"ovchat/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case manager.IsInvalid(err):
		return http.StatusBadRequest
	case manager.IsNotLoaded(err):
		return http.StatusConflict
	case manager.IsBusy(err):
		return http.StatusTooManyRequests
	case manager.IsNoDevice(err), manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
