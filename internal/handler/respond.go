package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
)

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	log.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	respondWithJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFromError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindExternalTransient, apperr.KindExternalAuth:
		return http.StatusBadGateway
	// A permanent provider rejection is a business outcome; the provider's
	// message must reach the caller, so it stays below the 5xx masking.
	case apperr.KindExternalPermanent:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
