package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/errs"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps a service error to its HTTP status. Note Forbidden is folded
// into 404 together with NotFound.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrForbidden):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, errs.ErrAlreadyVerified),
		errors.Is(err, errs.ErrAlreadySecured),
		errors.Is(err, errs.ErrNotSecured):
		return http.StatusConflict
	case errors.Is(err, errs.ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrOTPInvalid), errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrDeliveryFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its stable public message. Only unexpected
// errors are logged with detail.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, code, errorBody{Error: errs.Public(err)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.ErrInvalidArgument
	}
	return nil
}
