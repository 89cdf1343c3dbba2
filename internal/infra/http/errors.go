package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"broadcast-hub/internal/domain"
)

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor сопоставляет доменную ошибку HTTP-статусу и машинному коду.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSchedule):
		return http.StatusBadRequest, "invalid_schedule"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrTransientStore):
		return http.StatusServiceUnavailable, "transient_store"
	}
	return http.StatusInternalServerError, "internal"
}

// WriteError пишет ошибку в формате ErrorResponse. Внутренние ошибки не раскрываются клиенту.
func WriteError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).Msg("http: internal error")
		msg = "internal error"
	case http.StatusServiceUnavailable:
		log.Warn().Err(err).Msg("http: store unavailable")
		msg = "store temporarily unavailable"
	case http.StatusUnauthorized:
		msg = "authentication required"
	}
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteJSON пишет тело ответа в JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
