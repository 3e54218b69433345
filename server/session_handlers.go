package server

import (
	"encoding/json"
	"net/http"

	"github.com/taskhive/taskhive-server/auth"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/internal/obs"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshTokenFromRequest prefers the cookie and falls back to the JSON body
// for clients that keep tokens themselves.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(refreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	var body refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}

// RefreshHandler rotates the refresh token and reissues the session cookies.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := refreshTokenFromRequest(r)
		if refreshToken == "" {
			obs.CountRefreshRotation("invalid")
			writeUnauthorized(w)
			return
		}

		accessToken, newRefreshToken, err := s.auth.Refresh(r.Context(), refreshToken)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrRevoked) {
				obs.CountRefreshRotation("reused")
			} else {
				obs.CountRefreshRotation("invalid")
			}
			writeError(w, err)
			return
		}
		obs.CountRefreshRotation("ok")

		s.setSessionCookies(w, accessToken, newRefreshToken)
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token":  accessToken,
			"refresh_token": newRefreshToken,
		})
	}
}

// LogoutHandler revokes the refresh token and clears the session cookies.
// Revoking an already-dead token is still a successful logout.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if refreshToken := refreshTokenFromRequest(r); refreshToken != "" {
			if err := s.auth.Logout(r.Context(), refreshToken); err != nil {
				writeError(w, err)
				return
			}
		}

		clearCookie(w, accessTokenCookie, "/", s.secureCookies())
		clearCookie(w, refreshTokenCookie, "/auth", s.secureCookies())
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

// MeHandler returns the acting user joined with their linked providers.
func (s *Server) MeHandler() http.HandlerFunc {
	type linkedAccount struct {
		Provider string `json:"provider"`
		Email    string `json:"email,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeUnauthorized(w)
			return
		}

		user, err := s.users.GetByID(r.Context(), actor.UserID)
		if err != nil {
			writeError(w, err)
			return
		}

		links, err := s.links.ListByUser(r.Context(), actor.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		linked := make([]linkedAccount, 0, len(links))
		for _, l := range links {
			linked = append(linked, linkedAccount{Provider: l.Provider, Email: l.ProviderEmail})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user":  user,
			"role":  actor.Role,
			"links": linked,
		})
	}
}
