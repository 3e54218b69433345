package apitoken

import (
	"context"
	"time"
)

type Repo interface {
	Insert(ctx context.Context, token *StoredAPIToken) error

	// GetByHash returns the row for a token hash, apperrors.ErrNotFound when
	// no such row exists.
	GetByHash(ctx context.Context, tokenHash string) (*StoredAPIToken, error)

	// ListByUser returns all of a user's rows, newest first.
	ListByUser(ctx context.Context, userID string) ([]*StoredAPIToken, error)

	// Revoke sets revoked_at/revoked_reason on a not-yet-revoked row owned by
	// userID and reports whether a row was affected.
	Revoke(ctx context.Context, userID, tokenID string, revokedAt time.Time, reason string) (bool, error)

	TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error
}
