package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/taskhive/taskhive-server/accountlink"
	linkrepofake "github.com/taskhive/taskhive-server/accountlink/repofake"
	"github.com/taskhive/taskhive-server/auth"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/providers"
	"github.com/taskhive/taskhive-server/token"
	"github.com/taskhive/taskhive-server/token/apitoken"
	apitokenrepofake "github.com/taskhive/taskhive-server/token/apitoken/repofake"
	"github.com/taskhive/taskhive-server/token/impersonation"
	impersonationrepofake "github.com/taskhive/taskhive-server/token/impersonation/repofake"
	"github.com/taskhive/taskhive-server/token/keys"
	"github.com/taskhive/taskhive-server/token/refresh"
	refreshrepofake "github.com/taskhive/taskhive-server/token/refresh/repofake"
	"github.com/taskhive/taskhive-server/users"
	userrepofake "github.com/taskhive/taskhive-server/users/repofake"
)

// stubProvider satisfies providers.Provider without any remote calls.
type stubProvider struct {
	name        string
	profile     *providers.Profile
	exchangeErr error
	exchanged   int
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Config() *oauth2.Config { return &oauth2.Config{} }
func (p *stubProvider) AuthorizationURL(state string) string { return "https://idp.example/auth?state=" + state }
func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	p.exchanged++
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-token"}, nil
}
func (p *stubProvider) FetchProfile(ctx context.Context, tok *oauth2.Token) (*providers.Profile, error) {
	return p.profile, nil
}

type stubDirectory struct {
	provider *stubProvider
}

func (d *stubDirectory) ForName(name string) (providers.Provider, error) {
	if d.provider != nil && name == d.provider.name {
		return d.provider, nil
	}
	return nil, apperrors.ErrNotFound
}

type serviceFixture struct {
	service  *auth.Service
	provider *stubProvider
	users    *userrepofake.FakeUserRepo
	refresh  *refresh.Manager
	codec    *token.Codec
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	kp, err := keys.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	codec, err := token.NewCodec(kp)
	require.NoError(t, err)

	userRepo := userrepofake.NewFakeUserRepo()
	linker, err := accountlink.NewLinker(linkrepofake.NewFakeLinkRepo(), userRepo)
	require.NoError(t, err)

	refreshTokens, err := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo())
	require.NoError(t, err)
	apiTokens, err := apitoken.NewManager(apitokenrepofake.NewFakeAPITokenRepo())
	require.NoError(t, err)
	impersonations, err := impersonation.NewManager(impersonationrepofake.NewFakeImpersonationRepo())
	require.NoError(t, err)

	provider := &stubProvider{
		name: "google",
		profile: &providers.Profile{
			ProviderUserID: "g-1",
			Email:          "erin@example.com",
			DisplayName:    "Erin",
		},
	}

	service, err := auth.NewService(&stubDirectory{provider: provider}, linker, codec, refreshTokens, apiTokens, impersonations, userRepo)
	require.NoError(t, err)

	return &serviceFixture{
		service:  service,
		provider: provider,
		users:    userRepo,
		refresh:  refreshTokens,
		codec:    codec,
	}
}

func TestBeginOAuth(t *testing.T) {
	f := setupService(t)

	state, redirectURL, err := f.service.BeginOAuth("google")
	require.NoError(t, err)
	require.Len(t, state, 64)
	require.Contains(t, redirectURL, state)

	_, _, err = f.service.BeginOAuth("myspace")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCompleteOAuthHappyPath(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.service.CompleteOAuth(ctx, "google", "code-1", "state-abc", "state-abc")
	require.NoError(t, err)
	require.True(t, result.IsNewUser)
	require.NotEmpty(t, result.UserID)
	require.Len(t, result.RefreshToken, 64)

	claims, err := f.codec.Verify(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, result.UserID, claims.Subject)
	require.Equal(t, users.RoleUser, claims.Role)

	// Second login through the same identity is not a new user.
	result2, err := f.service.CompleteOAuth(ctx, "google", "code-2", "s", "s")
	require.NoError(t, err)
	require.False(t, result2.IsNewUser)
	require.Equal(t, result.UserID, result2.UserID)
}

func TestCompleteOAuthCSRFMismatchSkipsExchange(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	cases := [][2]string{
		{"state-a", "state-b"},
		{"", "state-b"},
		{"state-a", ""},
	}
	for _, tc := range cases {
		_, err := f.service.CompleteOAuth(ctx, "google", "code-1", tc[0], tc[1])
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	}
	require.Zero(t, f.provider.exchanged, "no network call may happen before the CSRF check passes")
}

func TestCompleteOAuthExchangeFailure(t *testing.T) {
	f := setupService(t)
	f.provider.exchangeErr = apperrors.ErrProviderExchangeFailed

	_, err := f.service.CompleteOAuth(context.Background(), "google", "bad-code", "s", "s")
	require.ErrorIs(t, err, apperrors.ErrProviderExchangeFailed)
}

func TestRefreshRotatesAndUsesLiveRole(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.service.CompleteOAuth(ctx, "google", "code-1", "s", "s")
	require.NoError(t, err)

	// Promote the user after login; the next refresh must pick it up.
	f.users.SetRole(result.UserID, users.RoleAdmin)

	accessToken, newRefreshToken, err := f.service.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	claims, err := f.codec.Verify(accessToken)
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, claims.Role)

	// The superseded refresh token is burned.
	_, _, err = f.service.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	_, _, err = f.service.Refresh(ctx, newRefreshToken)
	require.NoError(t, err)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	result, err := f.service.CompleteOAuth(ctx, "google", "code-1", "s", "s")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, result.RefreshToken))
	_, _, err = f.service.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrRevoked)
	require.NoError(t, f.service.Logout(ctx, result.RefreshToken))
}

func TestRepeatedLoginsRespectRefreshCap(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	tokens := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		result, err := f.service.CompleteOAuth(ctx, "google", "code", "s", "s")
		require.NoError(t, err)
		tokens = append(tokens, result.RefreshToken)
	}

	active := 0
	for _, tok := range tokens {
		if _, err := f.refresh.Validate(ctx, tok); err == nil {
			active++
		}
	}
	require.Equal(t, refresh.DefaultMaxPerUser, active)
}

func TestStartImpersonationGuards(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &users.User{ID: "admin-1", Email: "a1@example.com", Role: users.RoleAdmin}))
	require.NoError(t, f.users.Create(ctx, &users.User{ID: "admin-2", Email: "a2@example.com", Role: users.RoleAdmin}))
	require.NoError(t, f.users.Create(ctx, &users.User{ID: "user-1", Email: "u1@example.com", Role: users.RoleUser}))

	admin := auth.Actor{UserID: "admin-1", Role: users.RoleAdmin}

	// Self-impersonation is forbidden.
	_, err := f.service.StartImpersonation(ctx, admin, "admin-1")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Admin-on-admin is forbidden.
	_, err = f.service.StartImpersonation(ctx, admin, "admin-2")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Non-admin callers are forbidden.
	_, err = f.service.StartImpersonation(ctx, auth.Actor{UserID: "user-1", Role: users.RoleUser}, "admin-1")
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// Unknown target is not found.
	_, err = f.service.StartImpersonation(ctx, admin, "ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	// The allowed case works, and stop is idempotent.
	tok, err := f.service.StartImpersonation(ctx, admin, "user-1")
	require.NoError(t, err)
	require.Len(t, tok, 64)
	require.NoError(t, f.service.StopImpersonation(ctx, tok))
	require.NoError(t, f.service.StopImpersonation(ctx, tok))
}
