package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/apitoken"
)

var _ apitoken.Repo = (*APITokenRepo)(nil)

// APITokenRepo is the PostgreSQL apitoken.Repo.
type APITokenRepo struct {
	db *sql.DB
}

func NewAPITokenRepo(db *sql.DB) *APITokenRepo {
	return &APITokenRepo{db: db}
}

func (r *APITokenRepo) Insert(ctx context.Context, token *apitoken.StoredAPIToken) error {
	_, err := r.db.ExecContext(ctx,
		`insert into api_tokens(id, user_id, name, description, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		token.ID, token.UserID, token.Name, token.Description, token.TokenHash,
		token.CreatedAt, token.ExpiresAt, token.LastUsedAt, token.RevokedAt, token.RevokedReason,
	)
	return errors.Wrap(err, "[APITokenRepo.Insert] insert")
}

func (r *APITokenRepo) GetByHash(ctx context.Context, tokenHash string) (*apitoken.StoredAPIToken, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, user_id, name, description, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason
		 from api_tokens where token_hash=$1`, tokenHash)
	var t apitoken.StoredAPIToken
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.TokenHash,
		&t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.RevokedReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[APITokenRepo.GetByHash] scan")
	}
	return &t, nil
}

func (r *APITokenRepo) ListByUser(ctx context.Context, userID string) ([]*apitoken.StoredAPIToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`select id, user_id, name, description, token_hash, created_at, expires_at, last_used_at, revoked_at, revoked_reason
		 from api_tokens where user_id=$1 order by created_at desc`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[APITokenRepo.ListByUser] query")
	}
	defer rows.Close()

	var tokens []*apitoken.StoredAPIToken
	for rows.Next() {
		var t apitoken.StoredAPIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.TokenHash,
			&t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt, &t.RevokedAt, &t.RevokedReason); err != nil {
			return nil, errors.Wrap(err, "[APITokenRepo.ListByUser] scan")
		}
		tokens = append(tokens, &t)
	}
	return tokens, errors.Wrap(rows.Err(), "[APITokenRepo.ListByUser] rows")
}

// Revoke claims the row by id only when it belongs to userID and has not been
// revoked before. Ownership enforcement lives in the WHERE clause so a caller
// can never revoke somebody else's token.
func (r *APITokenRepo) Revoke(ctx context.Context, userID, tokenID string, revokedAt time.Time, reason string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`update api_tokens set revoked_at=$3, revoked_reason=$4
		 where id=$1 and user_id=$2 and revoked_at is null`,
		tokenID, userID, revokedAt, reason,
	)
	if err != nil {
		return false, errors.Wrap(err, "[APITokenRepo.Revoke] update")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[APITokenRepo.Revoke] rows affected")
	}
	return affected > 0, nil
}

func (r *APITokenRepo) TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`update api_tokens set last_used_at=$2 where token_hash=$1`,
		tokenHash, usedAt,
	)
	return errors.Wrap(err, "[APITokenRepo.TouchLastUsed] update")
}
