package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/refresh"
)

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo is the PostgreSQL refresh.Repo.
type RefreshTokenRepo struct {
	db *sql.DB
}

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Insert(ctx context.Context, token *refresh.StoredRefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
		token.LastUsedAt, token.RevokedAt, token.RevokedReason,
	)
	return errors.Wrap(err, "[RefreshTokenRepo.Insert] insert")
}

func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*refresh.StoredRefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason
		 from refresh_tokens where token_hash=$1`, tokenHash)
	var t refresh.StoredRefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.RevokedReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RefreshTokenRepo.GetByHash] scan")
	}
	return &t, nil
}

// Revoke claims the row only if nobody revoked it first. The revoked_at IS
// NULL condition is what makes concurrent rotations of the same token resolve
// to a single winner.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, reason string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2, revoked_reason=$3
		 where token_hash=$1 and revoked_at is null`,
		tokenHash, revokedAt, reason,
	)
	if err != nil {
		return false, errors.Wrap(err, "[RefreshTokenRepo.Revoke] update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[RefreshTokenRepo.Revoke] rows affected")
	}
	return affected > 0, nil
}

func (r *RefreshTokenRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*refresh.StoredRefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`select id, user_id, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason
		 from refresh_tokens
		 where user_id=$1 and revoked_at is null and expires_at > $2
		 order by created_at desc`,
		userID, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepo.ListActiveByUser] query")
	}
	defer rows.Close()

	var tokens []*refresh.StoredRefreshToken
	for rows.Next() {
		var t refresh.StoredRefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.RevokedReason); err != nil {
			return nil, errors.Wrap(err, "[RefreshTokenRepo.ListActiveByUser] scan")
		}
		tokens = append(tokens, &t)
	}
	return tokens, errors.Wrap(rows.Err(), "[RefreshTokenRepo.ListActiveByUser] rows")
}

func (r *RefreshTokenRepo) TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update refresh_tokens set last_used_at=$2 where token_hash=$1`,
		tokenHash, usedAt,
	)
	return errors.Wrap(err, "[RefreshTokenRepo.TouchLastUsed] update")
}
