package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/users"
)

var _ users.Repo = (*UserRepo)(nil)

// UserRepo is the PostgreSQL users.Repo.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	_, err := r.db.ExecContext(ctx,
		`insert into users(id, email, display_name, avatar_url, role, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		user.ID, user.Email, user.DisplayName, user.AvatarURL, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	return errors.Wrap(err, "[UserRepo.Create] insert")
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`select id, email, display_name, avatar_url, role, created_at, updated_at
		 from users where id=$1`, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`select id, email, display_name, avatar_url, role, created_at, updated_at
		 from users where email=$1`, email))
}

func (r *UserRepo) scanOne(row *sql.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[UserRepo] scan")
	}
	return &u, nil
}
