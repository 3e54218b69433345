package accountlink

import "context"

type Repo interface {
	// GetByProviderID returns the link for (provider, providerUserID),
	// apperrors.ErrNotFound when none exists.
	GetByProviderID(ctx context.Context, provider, providerUserID string) (*Link, error)

	// Upsert inserts the link; on a (provider, provider_user_id) conflict it
	// updates user_id, provider_email and updated_at instead. Last writer
	// wins on metadata.
	Upsert(ctx context.Context, link *Link) error

	// ListByUser returns all links attached to a user, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*Link, error)
}
