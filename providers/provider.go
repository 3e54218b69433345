// Package providers integrates the remote OAuth identity providers. The set
// is closed: Google, GitHub and Discord, dispatched by the provider-name
// segment of the request path. Every provider resolves its quirks inside
// FetchProfile and guarantees a usable, verified email or fails with
// ErrProfileIncomplete — email is the anchor of account linking.
package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

// remoteTimeout bounds every round trip to a provider. Exchanges are never
// retried: authorization codes are single-use and a blind retry could consume
// a code another request already spent.
const remoteTimeout = 5 * time.Second

// Profile is the provider-neutral identity extracted after code exchange.
type Profile struct {
	ProviderUserID string
	Email          string
	Username       string
	DisplayName    string
	AvatarURL      string
}

// Provider is the shared contract of every OAuth integration.
type Provider interface {
	Name() string
	Config() *oauth2.Config
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error)
}

// Credentials is the per-provider client registration from configuration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Registry holds the closed provider set keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds the registry from per-provider credentials. A provider
// without a client id is left out entirely, so its begin/callback routes
// answer ErrNotFound instead of redirecting with an empty client_id.
func NewRegistry(google, github, discord Credentials) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range []Provider{
		NewGoogle(google),
		NewGitHub(github),
		NewDiscord(discord),
	} {
		if p.Config().ClientID == "" {
			continue
		}
		r.providers[p.Name()] = p
	}
	return r
}

// ForName returns the provider for a path segment, apperrors.ErrNotFound for
// anything outside the closed set.
func (r *Registry) ForName(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "unknown provider %q", name)
	}
	return p, nil
}

// exchange runs the code exchange under the shared timeout and maps provider
// rejections onto ErrProviderExchangeFailed.
func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, errors.Wrapf(apperrors.ErrProviderExchangeFailed, "token endpoint returned %d", retrieveErr.Response.StatusCode)
		}
		return nil, errors.Wrap(err, "[exchange] Exchange")
	}
	return tok, nil
}

// getJSON fetches a provider API resource with the token-bearing client and
// decodes the JSON body into out.
func getJSON(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "[getJSON] NewRequest")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return errors.Wrap(err, "[getJSON] Do")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(apperrors.ErrProviderExchangeFailed, "%s returned %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "[getJSON] Decode")
	}
	return nil
}
