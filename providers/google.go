package providers

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

const googleIssuer = "https://accounts.google.com"

// Google authenticates through Google's OIDC layer. The profile comes from
// the verified ID token rather than a userinfo call: signature and audience
// checks come for free and no extra round trip is needed.
type Google struct {
	config *oauth2.Config

	issuerURL string // overridable for tests
	initLock  sync.Mutex
	verifier  *oidc.IDTokenVerifier
}

func NewGoogle(creds Credentials) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		issuerURL: googleIssuer,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Config() *oauth2.Config { return g.config }

func (g *Google) AuthorizationURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *Google) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, g.config, code)
}

func (g *Google) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.Wrap(apperrors.ErrProfileIncomplete, "google: no id_token in token response")
	}

	verifier, err := g.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Google.FetchProfile] Verify")
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Google.FetchProfile] Claims")
	}

	if claims.Email == "" || !claims.EmailVerified {
		return nil, errors.Wrap(apperrors.ErrProfileIncomplete, "google: account has no verified email")
	}

	return &Profile{
		ProviderUserID: claims.Sub,
		Email:          claims.Email,
		DisplayName:    claims.Name,
		AvatarURL:      claims.Picture,
	}, nil
}

// idTokenVerifier lazily resolves Google's OIDC discovery document; doing it
// at construction would make startup depend on Google being reachable. Only
// success is memoized so a transient discovery failure is retried next login.
func (g *Google) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	g.initLock.Lock()
	defer g.initLock.Unlock()

	if g.verifier != nil {
		return g.verifier, nil
	}

	discoverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(discoverCtx, g.issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[Google.idTokenVerifier] NewProvider")
	}
	g.verifier = provider.Verifier(&oidc.Config{ClientID: g.config.ClientID})
	return g.verifier, nil
}
