package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/impersonation"
)

var _ impersonation.Repo = (*ImpersonationRepo)(nil)

// ImpersonationRepo is the PostgreSQL impersonation.Repo. Sessions are hard
// deleted on stop; a missing row reads as a dead session.
type ImpersonationRepo struct {
	db *sql.DB
}

func NewImpersonationRepo(db *sql.DB) *ImpersonationRepo {
	return &ImpersonationRepo{db: db}
}

func (r *ImpersonationRepo) Insert(ctx context.Context, session *impersonation.StoredSession) error {
	_, err := r.db.ExecContext(ctx,
		`insert into impersonation_sessions(id, admin_user_id, target_user_id, token_hash, created_at, expires_at)
		 values($1,$2,$3,$4,$5,$6)`,
		session.ID, session.AdminUserID, session.TargetUserID, session.TokenHash,
		session.CreatedAt, session.ExpiresAt,
	)
	return errors.Wrap(err, "[ImpersonationRepo.Insert] insert")
}

func (r *ImpersonationRepo) GetByHash(ctx context.Context, tokenHash string) (*impersonation.StoredSession, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, admin_user_id, target_user_id, token_hash, created_at, expires_at
		 from impersonation_sessions where token_hash=$1`, tokenHash)
	var s impersonation.StoredSession
	err := row.Scan(&s.ID, &s.AdminUserID, &s.TargetUserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[ImpersonationRepo.GetByHash] scan")
	}
	return &s, nil
}

func (r *ImpersonationRepo) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`delete from impersonation_sessions where token_hash=$1`, tokenHash)
	if err != nil {
		return false, errors.Wrap(err, "[ImpersonationRepo.DeleteByHash] delete")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[ImpersonationRepo.DeleteByHash] rows affected")
	}
	return affected > 0, nil
}
