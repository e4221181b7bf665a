package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/infra/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor is the single place domain errors become HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrContextNotFound):
		return http.StatusNotFound, "context_not_found"
	case errors.Is(err, domain.ErrOfferNotFound):
		return http.StatusNotFound, "offer_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrContextNotOpen):
		return http.StatusConflict, "context_not_open"
	case errors.Is(err, domain.ErrInvalidCategory):
		return http.StatusBadRequest, "invalid_category"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrProviderError):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusNotFound, "unsupported_provider"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
