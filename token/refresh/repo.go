package refresh

import (
	"context"
	"time"
)

type Repo interface {
	Insert(ctx context.Context, token *StoredRefreshToken) error

	// GetByHash returns the row for a token hash, apperrors.ErrNotFound when
	// no such row exists.
	GetByHash(ctx context.Context, tokenHash string) (*StoredRefreshToken, error)

	// Revoke sets revoked_at/revoked_reason on a not-yet-revoked row and
	// reports whether a row was affected. The condition makes rotation a
	// single atomic claim on the token.
	Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, reason string) (bool, error)

	// ListActiveByUser returns unrevoked, unexpired rows for a user, newest
	// first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*StoredRefreshToken, error)

	TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error
}
