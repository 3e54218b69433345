package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/taskhive/taskhive-server/accountlink"
	"github.com/taskhive/taskhive-server/auth"
	"github.com/taskhive/taskhive-server/internal/config"
	"github.com/taskhive/taskhive-server/users"
)

// Server is the HTTP surface over the auth service. It owns the router and
// all request middleware; lifecycle (listen, shutdown) belongs to the caller.
type Server struct {
	router   *mux.Router
	config   *config.Config
	auth     *auth.Service
	resolver *auth.Resolver
	users    users.Repo
	links    accountlink.Repo
	limiter  *ipRateLimiter
}

func New(cfg *config.Config, authService *auth.Service, resolver *auth.Resolver, userRepo users.Repo, linkRepo accountlink.Repo) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if authService == nil || resolver == nil {
		return nil, errors.New("[server.New] auth service and resolver are required")
	}
	if userRepo == nil || linkRepo == nil {
		return nil, errors.New("[server.New] repositories are required")
	}

	s := &Server{
		router:   mux.NewRouter(),
		config:   cfg,
		auth:     authService,
		resolver: resolver,
		users:    userRepo,
		links:    linkRepo,
		limiter:  newIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
	s.initRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// secureCookies reports whether auth cookies should carry the Secure flag,
// derived from the external base URL scheme.
func (s *Server) secureCookies() bool {
	return len(s.config.Server.BaseURL) >= 8 && s.config.Server.BaseURL[:8] == "https://"
}
