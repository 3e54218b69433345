package impersonation

import "context"

type Repo interface {
	Insert(ctx context.Context, session *StoredSession) error

	// GetByHash returns the row for a token hash, apperrors.ErrNotFound when
	// no such row exists.
	GetByHash(ctx context.Context, tokenHash string) (*StoredSession, error)

	// DeleteByHash removes the row and reports whether one existed.
	DeleteByHash(ctx context.Context, tokenHash string) (bool, error)
}
