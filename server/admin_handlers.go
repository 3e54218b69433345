package server

import (
	"encoding/json"
	"net/http"

	"github.com/taskhive/taskhive-server/auth"
)

type startImpersonationRequest struct {
	TargetUserID string `json:"target_user_id"`
}

type stopImpersonationRequest struct {
	Token string `json:"token"`
}

// StartImpersonationHandler opens an impersonation session for an admin. The
// caller must come through RequireAdmin.
func (s *Server) StartImpersonationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.ActorFromContext(r.Context())

		var req startImpersonationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target_user_id_required"})
			return
		}

		impersonationToken, err := s.auth.StartImpersonation(r.Context(), actor, req.TargetUserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"impersonation_token": impersonationToken})
	}
}

// StopImpersonationHandler ends a session. The token may arrive in the
// impersonation header or the body; stopping a dead session succeeds.
func (s *Server) StopImpersonationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		impersonationToken := r.Header.Get(auth.HeaderImpersonationToken)
		if impersonationToken == "" {
			var req stopImpersonationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				impersonationToken = req.Token
			}
		}
		if impersonationToken == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token_required"})
			return
		}

		if err := s.auth.StopImpersonation(r.Context(), impersonationToken); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}
