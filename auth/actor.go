// Package auth resolves inbound credentials to an authenticated Actor and
// orchestrates the credential lifecycle: OAuth login, refresh rotation,
// logout, API tokens and administrative impersonation.
package auth

import (
	"context"

	"github.com/taskhive/taskhive-server/users"
)

// Actor is the resolved identity of the party making a request. It is derived
// fresh per request and never persisted.
type Actor struct {
	UserID string
	Role   users.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role.IsAdmin()
}

type actorContextKey struct{}

// ContextWithActor attaches the authenticated actor to the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, &actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok || v == nil {
		return Actor{}, false
	}
	return *v, true
}
