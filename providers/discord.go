package providers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

const discordAPIBase = "https://discord.com/api/v10"

// discordEndpoint is spelled out here; x/oauth2 ships no Discord preset.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// Discord authenticates through Discord's OAuth2 API. The email scope must be
// requested explicitly; without it the /users/@me payload simply omits the
// field, and an unverified email is as useless to account linking as none.
type Discord struct {
	config  *oauth2.Config
	apiBase string // overridable for tests
}

func NewDiscord(creds Credentials) *Discord {
	return &Discord{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     discordEndpoint,
			Scopes:       []string{"identify", "email"},
		},
		apiBase: discordAPIBase,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Config() *oauth2.Config { return d.config }

func (d *Discord) AuthorizationURL(state string) string {
	return d.config.AuthCodeURL(state)
}

func (d *Discord) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, d.config, code)
}

func (d *Discord) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	var user struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
		Avatar     string `json:"avatar"`
	}
	if err := getJSON(ctx, d.config, tok, d.apiBase+"/users/@me", &user); err != nil {
		return nil, errors.Wrap(err, "[Discord.FetchProfile] /users/@me")
	}

	if user.Email == "" || !user.Verified {
		return nil, errors.Wrap(apperrors.ErrProfileIncomplete, "discord: account has no verified email (is the email scope granted?)")
	}

	profile := &Profile{
		ProviderUserID: user.ID,
		Email:          user.Email,
		Username:       user.Username,
		DisplayName:    user.GlobalName,
	}
	if user.Avatar != "" {
		profile.AvatarURL = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", user.ID, user.Avatar)
	}
	return profile, nil
}
