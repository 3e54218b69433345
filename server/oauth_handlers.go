package server

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/taskhive/taskhive-server/auth"
	"github.com/taskhive/taskhive-server/internal/obs"
	"github.com/taskhive/taskhive-server/token"
	"github.com/taskhive/taskhive-server/token/refresh"
)

const (
	stateCookie        = "oauth_state"
	accessTokenCookie  = auth.AccessTokenCookie
	refreshTokenCookie = "refresh_token"
)

// BeginOAuthHandler starts the login flow: mints a CSRF state, pins it in a
// short-lived cookie and bounces the browser to the provider.
func (s *Server) BeginOAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := mux.Vars(r)["provider"]

		state, redirectURL, err := s.auth.BeginOAuth(provider)
		if err != nil {
			writeError(w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     "/callback",
			MaxAge:   int(auth.StateCookieTTL.Seconds()),
			HttpOnly: true,
			Secure:   s.secureCookies(),
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes the login flow. Tokens land both as cookies
// (same-origin clients) and in the redirect fragment (cross-origin frontend);
// the fragment never reaches server logs.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := mux.Vars(r)["provider"]
		code := r.URL.Query().Get("code")
		queryState := r.URL.Query().Get("state")

		var cookieState string
		if c, err := r.Cookie(stateCookie); err == nil {
			cookieState = c.Value
		}

		result, err := s.auth.CompleteOAuth(r.Context(), provider, code, cookieState, queryState)
		if err != nil {
			writeError(w, err)
			return
		}
		obs.CountLogin(provider)

		clearCookie(w, stateCookie, "/callback", s.secureCookies())
		s.setSessionCookies(w, result.AccessToken, result.RefreshToken)

		fragment := url.Values{}
		fragment.Set("access_token", result.AccessToken)
		fragment.Set("refresh_token", result.RefreshToken)
		http.Redirect(w, r, s.config.Server.FrontendURL+"#"+fragment.Encode(), http.StatusFound)
	}
}

func (s *Server) setSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	secure := s.secureCookies()
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(token.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     "/auth",
		MaxAge:   int(refresh.TTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
	})
}
