package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive-server/auth"
	"github.com/taskhive/taskhive-server/internal/utils"
)

type createAPITokenRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	// ExpiresInDays of zero or absent means the token never expires.
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

// ListAPITokensHandler returns the actor's tokens; plaintext and hashes are
// never included.
func (s *Server) ListAPITokensHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFromContext(r.Context())

		tokens, err := s.auth.ListAPITokens(r.Context(), actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
	}
}

// CreateAPITokenHandler mints a token. The plaintext appears exactly once, in
// this response.
func (s *Server) CreateAPITokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFromContext(r.Context())

		var req createAPITokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name_required"})
			return
		}

		var ttl *time.Duration
		if req.ExpiresInDays > 0 {
			ttl = utils.Ptr(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
		}

		plaintext, metadata, err := s.auth.CreateAPIToken(r.Context(), actor, req.Name, req.Description, ttl)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"token":    plaintext,
			"metadata": metadata,
		})
	}
}

func (s *Server) RevokeAPITokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFromContext(r.Context())
		tokenID := mux.Vars(r)["id"]

		if err := s.auth.RevokeAPIToken(r.Context(), actor, tokenID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}
