package accountlink

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/providers"
	"github.com/taskhive/taskhive-server/users"
)

// Linker resolves a provider profile to a local user id, creating the user
// and/or the link as needed.
type Linker struct {
	links   Repo
	users   users.Repo
	nowFunc func() time.Time
}

type LinkerOption func(*Linker)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) LinkerOption {
	return func(l *Linker) {
		l.nowFunc = now
	}
}

func NewLinker(links Repo, userRepo users.Repo, options ...LinkerOption) (*Linker, error) {
	if links == nil {
		return nil, errors.New("[NewLinker] links repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewLinker] users repo is required")
	}

	l := &Linker{
		links:   links,
		users:   userRepo,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(l)
	}

	return l, nil
}

// ResolveOrCreate maps a provider profile onto a local user id.
//
//  1. An existing (provider, provider_user_id) link wins: returning user.
//  2. Otherwise a local user with the profile's email gains a new link:
//     account linking across providers.
//  3. Otherwise a new user is created, then linked.
//
// The link write is an upsert, so a concurrent first login through the same
// provider identity converges instead of erroring.
func (l *Linker) ResolveOrCreate(ctx context.Context, provider string, profile *providers.Profile) (userID string, isNew bool, err error) {
	if profile.Email == "" {
		return "", false, errors.Wrap(apperrors.ErrProfileIncomplete, "profile has no email")
	}

	link, err := l.links.GetByProviderID(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return link.UserID, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return "", false, errors.Wrap(err, "[Linker.ResolveOrCreate] GetByProviderID")
	}

	existing, err := l.users.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		// Known account, new provider.
		userID = existing.ID
	case errors.Is(err, apperrors.ErrNotFound):
		user := l.newUserFromProfile(profile)
		if err := l.users.Create(ctx, user); err != nil {
			return "", false, errors.Wrap(err, "[Linker.ResolveOrCreate] users.Create")
		}
		userID = user.ID
		isNew = true
		log.Info().Str("user_id", userID).Str("provider", provider).Msg("created user from provider profile")
	default:
		return "", false, errors.Wrap(err, "[Linker.ResolveOrCreate] users.GetByEmail")
	}

	now := l.nowFunc()
	if err := l.links.Upsert(ctx, &Link{
		ID:             ulid.Make().String(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		ProviderEmail:  profile.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return "", false, errors.Wrap(err, "[Linker.ResolveOrCreate] links.Upsert")
	}

	return userID, isNew, nil
}

func (l *Linker) newUserFromProfile(profile *providers.Profile) *users.User {
	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.Username
	}
	if displayName == "" {
		displayName = emailLocalPart(profile.Email)
	}

	now := l.nowFunc()
	return &users.User{
		ID:          uuid.New().String(),
		Email:       profile.Email,
		DisplayName: displayName,
		AvatarURL:   profile.AvatarURL,
		Role:        users.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
