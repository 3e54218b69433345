package server

import (
	"net/http"

	"github.com/taskhive/taskhive-server/internal/obs"
)

const (
	RouteOAuthBegin    = "/oauth/{provider}"
	RouteOAuthCallback = "/callback/{provider}"

	RouteAuthRefresh = "/auth/refresh"
	RouteAuthLogout  = "/auth/logout"

	RouteMe        = "/me"
	RouteAPITokens = "/api-tokens"
	RouteAPIToken  = "/api-tokens/{id}"

	RouteAdminImpersonation = "/admin/impersonation"

	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
)

func (s *Server) initRoutes() {
	s.router.Use(s.RequestLoggingMiddleware, obs.Instrument, s.RecoverMiddleware, s.RateLimitMiddleware)

	// Login flow and session endpoints take no prior credential.
	s.router.HandleFunc(RouteOAuthBegin, s.BeginOAuthHandler()).Methods(http.MethodGet)
	s.router.HandleFunc(RouteOAuthCallback, s.OAuthCallbackHandler()).Methods(http.MethodGet)
	s.router.HandleFunc(RouteAuthRefresh, s.RefreshHandler()).Methods(http.MethodPost)
	s.router.HandleFunc(RouteAuthLogout, s.LogoutHandler()).Methods(http.MethodPost)

	// Authenticated surface.
	s.router.Handle(RouteMe, s.RequireActor(s.MeHandler())).Methods(http.MethodGet)
	s.router.Handle(RouteAPITokens, s.RequireActor(s.ListAPITokensHandler())).Methods(http.MethodGet)
	s.router.Handle(RouteAPITokens, s.RequireActor(s.CreateAPITokenHandler())).Methods(http.MethodPost)
	s.router.Handle(RouteAPIToken, s.RequireActor(s.RevokeAPITokenHandler())).Methods(http.MethodDelete)

	// Admin surface. Stop takes the impersonation token itself, so possession
	// is the authorization; only start needs an admin actor.
	s.router.Handle(RouteAdminImpersonation, s.RequireAdmin(s.StartImpersonationHandler())).Methods(http.MethodPost)
	s.router.HandleFunc(RouteAdminImpersonation, s.StopImpersonationHandler()).Methods(http.MethodDelete)

	// Operational endpoints bypass auth.
	s.router.HandleFunc(RouteHealthz, s.HealthzHandler()).Methods(http.MethodGet)
	s.router.Handle(RouteMetrics, obs.MetricsHandler()).Methods(http.MethodGet)
}
