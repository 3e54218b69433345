// Package accountlink reconciles remote provider identities with local user
// accounts. Several provider links may point at one user (account linking),
// but a given (provider, provider_user_id) pair maps to exactly one user.
package accountlink

import "time"

// Link is one federated identity attached to a local user. Links are created
// on first login through a provider and never implicitly deleted.
type Link struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	ProviderEmail  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
