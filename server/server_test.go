package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/taskhive/taskhive-server/accountlink"
	linkrepofake "github.com/taskhive/taskhive-server/accountlink/repofake"
	"github.com/taskhive/taskhive-server/auth"
	"github.com/taskhive/taskhive-server/internal/config"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/providers"
	"github.com/taskhive/taskhive-server/server"
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

type stubProvider struct {
	profile *providers.Profile
}

func (p *stubProvider) Name() string { return "google" }
func (p *stubProvider) Config() *oauth2.Config { return &oauth2.Config{} }
func (p *stubProvider) AuthorizationURL(state string) string { return "https://idp.example/auth?state=" + state }
func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "provider-token"}, nil
}
func (p *stubProvider) FetchProfile(ctx context.Context, tok *oauth2.Token) (*providers.Profile, error) {
	return p.profile, nil
}

type stubDirectory struct {
	provider providers.Provider
}

func (d *stubDirectory) ForName(name string) (providers.Provider, error) {
	if name == d.provider.Name() {
		return d.provider, nil
	}
	return nil, apperrors.ErrNotFound
}

type serverFixture struct {
	srv   *server.Server
	users *userrepofake.FakeUserRepo
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	kp, err := keys.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	codec, err := token.NewCodec(kp)
	require.NoError(t, err)

	userRepo := userrepofake.NewFakeUserRepo()
	linkRepo := linkrepofake.NewFakeLinkRepo()
	linker, err := accountlink.NewLinker(linkRepo, userRepo)
	require.NoError(t, err)

	refreshTokens, err := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo())
	require.NoError(t, err)
	apiTokens, err := apitoken.NewManager(apitokenrepofake.NewFakeAPITokenRepo())
	require.NoError(t, err)
	impersonations, err := impersonation.NewManager(impersonationrepofake.NewFakeImpersonationRepo())
	require.NoError(t, err)

	directory := &stubDirectory{provider: &stubProvider{profile: &providers.Profile{
		ProviderUserID: "g-1",
		Email:          "erin@example.com",
		DisplayName:    "Erin",
	}}}

	authService, err := auth.NewService(directory, linker, codec, refreshTokens, apiTokens, impersonations, userRepo)
	require.NoError(t, err)
	resolver, err := auth.NewResolver(codec, apiTokens, impersonations, userRepo)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.Server.FrontendURL = "http://localhost:3000"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	srv, err := server.New(cfg, authService, resolver, userRepo, linkRepo)
	require.NoError(t, err)

	return &serverFixture{srv: srv, users: userRepo}
}

// login walks the full OAuth flow and returns the fragment-delivered tokens.
func (f *serverFixture) login(t *testing.T) (accessToken, refreshToken string) {
	t.Helper()

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/google", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	var state string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c.Value
		}
	}
	require.Len(t, state, 64)

	req := httptest.NewRequest(http.MethodGet, "/callback/google?code=c&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state})
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), "http://localhost:3000#"))
	fragment, err := url.ParseQuery(location.Fragment)
	require.NoError(t, err)

	accessToken = fragment.Get("access_token")
	refreshToken = fragment.Get("refresh_token")
	require.NotEmpty(t, accessToken)
	require.Len(t, refreshToken, 64)
	return accessToken, refreshToken
}

func TestHealthz(t *testing.T) {
	f := setupServer(t)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMeRequiresCredential(t *testing.T) {
	f := setupServer(t)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	f := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/callback/google?code=c&state=attacker", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "legit"})
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginThenMe(t *testing.T) {
	f := setupServer(t)
	accessToken, _ := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User  users.User `json:"user"`
		Role  string     `json:"role"`
		Links []struct {
			Provider string `json:"provider"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "erin@example.com", body.User.Email)
	require.Equal(t, "user", body.Role)
	require.Len(t, body.Links, 1)
	require.Equal(t, "google", body.Links[0].Provider)
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	f := setupServer(t)
	_, refreshToken := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["access_token"])
	require.Len(t, body["refresh_token"], 64)

	// Replaying the consumed token is a uniform 401.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestLogoutOverHTTP(t *testing.T) {
	f := setupServer(t)
	_, refreshToken := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"`+refreshToken+`"}`))
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPITokenLifecycleOverHTTP(t *testing.T) {
	f := setupServer(t)
	accessToken, _ := f.login(t)

	// Create.
	req := httptest.NewRequest(http.MethodPost, "/api-tokens", strings.NewReader(`{"name":"ci","expires_in_days":30}`))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Token    string             `json:"token"`
		Metadata *apitoken.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Token, 64)
	require.Equal(t, "ci", created.Metadata.Name)

	// The API key authenticates /me on its own.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(auth.HeaderAPIKey, created.Token)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// List never exposes the plaintext.
	req = httptest.NewRequest(http.MethodGet, "/api-tokens", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), created.Token)
	require.Contains(t, rec.Body.String(), created.Metadata.ID)

	// Revoke, then the key stops working.
	req = httptest.NewRequest(http.MethodDelete, "/api-tokens/"+created.Metadata.ID, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(auth.HeaderAPIKey, created.Token)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImpersonationOverHTTP(t *testing.T) {
	f := setupServer(t)
	accessToken, _ := f.login(t)

	// A plain user cannot open impersonation sessions.
	target := httptest.NewRequest(http.MethodPost, "/admin/impersonation", strings.NewReader(`{"target_user_id":"u-2"}`))
	target.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, target)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Promote the caller and create a second plain user to impersonate.
	me := httptest.NewRequest(http.MethodGet, "/me", nil)
	me.Header.Set("Authorization", "Bearer "+accessToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, me)
	var meBody struct {
		User users.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meBody))
	f.users.SetRole(meBody.User.ID, users.RoleAdmin)
	require.NoError(t, f.users.Create(context.Background(), &users.User{ID: "u-2", Email: "u2@example.com", Role: users.RoleUser}))

	// The old bearer still says "user"; mint a fresh admin session by
	// resolving through the live role on an API key instead. Simplest path:
	// re-login is not possible for a second identity here, so use the role
	// embedded at issue time by logging in again after promotion.
	accessToken2, _ := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/impersonation", strings.NewReader(`{"target_user_id":"u-2"}`))
	req.Header.Set("Authorization", "Bearer "+accessToken2)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	impersonationToken := started["impersonation_token"]
	require.Len(t, impersonationToken, 64)

	// The impersonation header wins over the admin bearer and demotes to the
	// target user.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken2)
	req.Header.Set(auth.HeaderImpersonationToken, impersonationToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var impersonatedMe struct {
		User users.User `json:"user"`
		Role string     `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &impersonatedMe))
	require.Equal(t, "u-2", impersonatedMe.User.ID)
	require.Equal(t, "user", impersonatedMe.Role)

	// Stop by header; a second stop still succeeds.
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodDelete, "/admin/impersonation", nil)
		req.Header.Set(auth.HeaderImpersonationToken, impersonationToken)
		rec = httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// The dead session no longer resolves.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(auth.HeaderImpersonationToken, impersonationToken)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
