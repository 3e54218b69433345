package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive-server/accountlink"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/providers"
	"github.com/taskhive/taskhive-server/secrets"
	"github.com/taskhive/taskhive-server/token"
	"github.com/taskhive/taskhive-server/token/apitoken"
	"github.com/taskhive/taskhive-server/token/impersonation"
	"github.com/taskhive/taskhive-server/token/refresh"
	"github.com/taskhive/taskhive-server/users"
)

// StateCookieTTL bounds how long an OAuth authorization attempt may take.
const StateCookieTTL = 10 * time.Minute

// LoginResult is what a completed OAuth login hands back to the HTTP layer.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	IsNewUser    bool
}

// ProviderDirectory resolves a provider-name path segment to its integration.
// Satisfied by *providers.Registry.
type ProviderDirectory interface {
	ForName(name string) (providers.Provider, error)
}

// Service composes the codec, the opaque token stores, the account linker and
// the provider registry into the credential lifecycle operations.
type Service struct {
	registry       ProviderDirectory
	linker         *accountlink.Linker
	codec          *token.Codec
	refreshTokens  *refresh.Manager
	apiTokens      *apitoken.Manager
	impersonations *impersonation.Manager
	users          users.Repo
	refreshCap     int
}

type ServiceOption func(*Service)

// WithRefreshCap overrides the per-user bound on concurrent refresh tokens.
func WithRefreshCap(cap int) ServiceOption {
	return func(s *Service) {
		s.refreshCap = cap
	}
}

func NewService(
	registry ProviderDirectory,
	linker *accountlink.Linker,
	codec *token.Codec,
	refreshTokens *refresh.Manager,
	apiTokens *apitoken.Manager,
	impersonations *impersonation.Manager,
	userRepo users.Repo,
	options ...ServiceOption,
) (*Service, error) {
	if registry == nil {
		return nil, errors.New("[NewService] provider registry is required")
	}
	if linker == nil {
		return nil, errors.New("[NewService] linker is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] codec is required")
	}
	if refreshTokens == nil || apiTokens == nil || impersonations == nil {
		return nil, errors.New("[NewService] token managers are required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}

	s := &Service{
		registry:       registry,
		linker:         linker,
		codec:          codec,
		refreshTokens:  refreshTokens,
		apiTokens:      apiTokens,
		impersonations: impersonations,
		users:          userRepo,
		refreshCap:     refresh.DefaultMaxPerUser,
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// BeginOAuth starts the authorization flow: a fresh CSRF state and the
// provider redirect URL bound to it.
func (s *Service) BeginOAuth(providerName string) (state, redirectURL string, err error) {
	provider, err := s.registry.ForName(providerName)
	if err != nil {
		return "", "", err
	}

	state, err = secrets.CSRFToken()
	if err != nil {
		return "", "", errors.Wrap(err, "[Service.BeginOAuth] CSRFToken")
	}
	return state, provider.AuthorizationURL(state), nil
}

// CompleteOAuth finishes the callback leg. The CSRF states are compared
// before any network call; only then is the code exchanged, the profile
// fetched and the identity linked. On success both token kinds are issued and
// the per-user refresh cap is enforced.
func (s *Service) CompleteOAuth(ctx context.Context, providerName, code, cookieState, queryState string) (*LoginResult, error) {
	provider, err := s.registry.ForName(providerName)
	if err != nil {
		return nil, err
	}

	if cookieState == "" || queryState == "" ||
		subtle.ConstantTimeCompare([]byte(cookieState), []byte(queryState)) != 1 {
		return nil, errors.Wrap(apperrors.ErrForbidden, "oauth state mismatch")
	}

	providerToken, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] ExchangeCode")
	}

	profile, err := provider.FetchProfile(ctx, providerToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] FetchProfile")
	}

	userID, isNew, err := s.linker.ResolveOrCreate(ctx, provider.Name(), profile)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] ResolveOrCreate")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] users.GetByID")
	}

	accessToken, err := s.codec.Issue(user.ID, user.Role)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] codec.Issue")
	}

	refreshToken, err := s.refreshTokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteOAuth] refresh.Issue")
	}

	if err := s.refreshTokens.EnforceCap(ctx, user.ID, s.refreshCap); err != nil {
		// The login itself succeeded; an uncapped stray token is a cleanup
		// problem, not a login failure.
		log.Warn().Err(err).Str("user_id", user.ID).Msg("refresh token cap enforcement failed")
	}

	log.Info().Str("user_id", user.ID).Str("provider", provider.Name()).Bool("new_user", isNew).Msg("oauth login completed")

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		IsNewUser:    isNew,
	}, nil
}

// Refresh rotates a refresh token and mints a new assertion carrying the
// owner's current stored role. Rotation is strict one-time-use; reuse of the
// superseded token fails as revoked.
func (s *Service) Refresh(ctx context.Context, oldRefreshToken string) (accessToken, newRefreshToken string, err error) {
	userID, newRefreshToken, err := s.refreshTokens.Rotate(ctx, oldRefreshToken)
	if err != nil {
		return "", "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", "", errors.Wrap(err, "[Service.Refresh] users.GetByID")
	}

	accessToken, err = s.codec.Issue(user.ID, user.Role)
	if err != nil {
		return "", "", errors.Wrap(err, "[Service.Refresh] codec.Issue")
	}
	return accessToken, newRefreshToken, nil
}

// Logout revokes the refresh token. Idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.refreshTokens.Revoke(ctx, refreshToken, refresh.ReasonUserLogout)
}

// CreateAPIToken issues a named API token for the actor.
func (s *Service) CreateAPIToken(ctx context.Context, actor Actor, name string, description *string, ttl *time.Duration) (string, *apitoken.Metadata, error) {
	return s.apiTokens.Create(ctx, actor.UserID, name, description, ttl)
}

// ListAPITokens returns the actor's tokens, newest first, metadata only.
func (s *Service) ListAPITokens(ctx context.Context, actor Actor) ([]*apitoken.Metadata, error) {
	return s.apiTokens.List(ctx, actor.UserID)
}

// RevokeAPIToken revokes one of the actor's own tokens; a token that is
// unknown, foreign or already revoked uniformly reads as not found.
func (s *Service) RevokeAPIToken(ctx context.Context, actor Actor, tokenID string) error {
	return s.apiTokens.Revoke(ctx, actor.UserID, tokenID)
}

// StartImpersonation issues an impersonation credential for admin acting as
// the target user. Self-impersonation and admin targets are forbidden; the
// latter keeps impersonation from ever traversing between admin accounts.
func (s *Service) StartImpersonation(ctx context.Context, admin Actor, targetUserID string) (string, error) {
	if !admin.IsAdmin() {
		return "", errors.Wrap(apperrors.ErrForbidden, "impersonation requires admin")
	}
	if admin.UserID == targetUserID {
		return "", errors.Wrap(apperrors.ErrForbidden, "cannot impersonate yourself")
	}

	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", errors.Wrap(err, "[Service.StartImpersonation] users.GetByID")
	}
	if target.Role.IsAdmin() {
		return "", errors.Wrap(apperrors.ErrForbidden, "cannot impersonate an admin")
	}

	plaintext, err := s.impersonations.Start(ctx, admin.UserID, targetUserID)
	if err != nil {
		return "", err
	}

	log.Info().Str("admin_user_id", admin.UserID).Str("target_user_id", targetUserID).Msg("impersonation started")
	return plaintext, nil
}

// StopImpersonation revokes the impersonation credential by deleting its
// session. Idempotent.
func (s *Service) StopImpersonation(ctx context.Context, impersonationToken string) error {
	return s.impersonations.Stop(ctx, impersonationToken)
}
