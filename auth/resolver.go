package auth

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token"
	"github.com/taskhive/taskhive-server/token/apitoken"
	"github.com/taskhive/taskhive-server/token/impersonation"
	"github.com/taskhive/taskhive-server/users"
)

const (
	HeaderImpersonationToken = "X-Impersonation-Token"
	HeaderAPIKey             = "X-API-Key"

	// AccessTokenCookie mirrors the Authorization header for browser clients.
	AccessTokenCookie = "access_token"
)

// Resolver turns an inbound request's credentials, of whatever scheme, into
// an Actor. Schemes are tried in fixed priority: impersonation token, bearer
// assertion, API key. A scheme whose credential is present but invalid fails
// the whole resolution; presence is an explicit authentication attempt, never
// an optional hint.
type Resolver struct {
	codec          *token.Codec
	apiTokens      *apitoken.Manager
	impersonations *impersonation.Manager
	users          users.Repo
}

func NewResolver(codec *token.Codec, apiTokens *apitoken.Manager, impersonations *impersonation.Manager, userRepo users.Repo) (*Resolver, error) {
	if codec == nil {
		return nil, errors.New("[NewResolver] codec is required")
	}
	if apiTokens == nil {
		return nil, errors.New("[NewResolver] api token manager is required")
	}
	if impersonations == nil {
		return nil, errors.New("[NewResolver] impersonation manager is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewResolver] users repo is required")
	}
	return &Resolver{
		codec:          codec,
		apiTokens:      apiTokens,
		impersonations: impersonations,
		users:          userRepo,
	}, nil
}

// Resolve authenticates the request or fails with ErrUnauthenticated (no
// credential) or the credential's validation error. Handlers surface all of
// these as one uniform 401; reasons stay in the logs.
func (r *Resolver) Resolve(req *http.Request) (Actor, error) {
	if impersonationToken := req.Header.Get(HeaderImpersonationToken); impersonationToken != "" {
		session, err := r.impersonations.Validate(req.Context(), impersonationToken)
		if err != nil {
			log.Debug().Err(err).Msg("impersonation token rejected")
			return Actor{}, err
		}
		// Impersonation always yields the plain user role, even when the
		// target is stored as an admin: it must never grant privileges.
		return Actor{UserID: session.TargetUserID, Role: users.RoleUser}, nil
	}

	if assertion := bearerFromRequest(req); assertion != "" {
		claims, err := r.codec.Verify(assertion)
		if err != nil {
			return Actor{}, err
		}
		// The embedded role is trusted for the assertion's lifetime; a role
		// change propagates at the next refresh, at most 15 minutes later.
		return Actor{UserID: claims.Subject, Role: claims.Role}, nil
	}

	if apiKey := req.Header.Get(HeaderAPIKey); apiKey != "" {
		userID, err := r.apiTokens.Validate(req.Context(), apiKey)
		if err != nil {
			log.Debug().Err(err).Msg("api key rejected")
			return Actor{}, err
		}
		// API tokens are validated against storage per call, so they join
		// the live role rather than a stale embedded one.
		user, err := r.users.GetByID(req.Context(), userID)
		if err != nil {
			return Actor{}, errors.Wrap(err, "[Resolver.Resolve] users.GetByID")
		}
		return Actor{UserID: user.ID, Role: user.Role}, nil
	}

	return Actor{}, apperrors.ErrUnauthenticated
}

// ResolveOptional is the variant for public endpoints that personalize output
// when authenticated but must not reject anonymous callers. A request with no
// credential yields a nil actor; a presented-but-invalid credential still
// fails.
func (r *Resolver) ResolveOptional(req *http.Request) (*Actor, error) {
	actor, err := r.Resolve(req)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthenticated) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

func bearerFromRequest(req *http.Request) string {
	if authHeader := req.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := req.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
