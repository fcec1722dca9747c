package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/quicksched/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrPassInProgress):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrEmptyBody),
		errors.Is(err, domain.ErrBodyTooLong),
		errors.Is(err, domain.ErrPublishTimeTooSoon),
		errors.Is(err, domain.ErrMissingPublishAt),
		errors.Is(err, domain.ErrInvalidMediaRef),
		errors.Is(err, domain.ErrTooManyMedia),
		errors.Is(err, domain.ErrEmptyUpload):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPlatformFailure),
		errors.Is(err, domain.ErrAssetHostFailure):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrPublisherDisabled),
		errors.Is(err, domain.ErrAssetHostDisabled),
		errors.Is(err, domain.ErrReconcileDisabled):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
