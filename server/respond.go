package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}

// writeUnauthorized is the single shape every authentication failure takes.
// Collapsing the causes keeps callers from probing why a credential failed.
func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrUnauthenticated),
		apperrors.Is(err, apperrors.ErrInvalidToken),
		apperrors.Is(err, apperrors.ErrExpired),
		apperrors.Is(err, apperrors.ErrRevoked):
		writeUnauthorized(w)
	case apperrors.Is(err, apperrors.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case apperrors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	case apperrors.Is(err, apperrors.ErrProfileIncomplete):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "profile_incomplete"})
	case apperrors.Is(err, apperrors.ErrProviderExchangeFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "provider_exchange_failed"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
	}
}
