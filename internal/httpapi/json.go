package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/miradorstack/mirador-responder/internal/utils"
)

const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// statusFor maps responder failure classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidArgument), errors.Is(err, utils.ErrInvalidServiceMetadata):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, utils.ErrExecutionFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, utils.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
