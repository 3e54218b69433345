package providers

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

const githubAPIBase = "https://api.github.com"

// GitHub authenticates through GitHub's OAuth app flow. GitHub hides the
// email on the profile endpoint when the user marked it private, so
// FetchProfile falls back to the dedicated emails endpoint and picks the
// primary verified address.
type GitHub struct {
	config  *oauth2.Config
	apiBase string // overridable for tests
}

func NewGitHub(creds Credentials) *GitHub {
	return &GitHub{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     oauth2github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: githubAPIBase,
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) Config() *oauth2.Config { return g.config }

func (g *GitHub) AuthorizationURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *GitHub) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, g.config, code)
}

func (g *GitHub) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, g.config, tok, g.apiBase+"/user", &user); err != nil {
		return nil, errors.Wrap(err, "[GitHub.FetchProfile] /user")
	}

	email := user.Email
	if email == "" {
		var err error
		email, err = g.primaryEmail(ctx, tok)
		if err != nil {
			return nil, err
		}
	}

	return &Profile{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		Username:       user.Login,
		DisplayName:    user.Name,
		AvatarURL:      user.AvatarURL,
	}, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, g.config, tok, g.apiBase+"/user/emails", &emails); err != nil {
		return "", errors.Wrap(err, "[GitHub.primaryEmail] /user/emails")
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.Wrap(apperrors.ErrProfileIncomplete, "github: no primary verified email")
}
