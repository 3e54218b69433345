package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/taskhive/taskhive-server/accountlink"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

var _ accountlink.Repo = (*AccountLinkRepo)(nil)

// AccountLinkRepo is the PostgreSQL accountlink.Repo.
type AccountLinkRepo struct {
	db *sql.DB
}

func NewAccountLinkRepo(db *sql.DB) *AccountLinkRepo {
	return &AccountLinkRepo{db: db}
}

func (r *AccountLinkRepo) GetByProviderID(ctx context.Context, provider, providerUserID string) (*accountlink.Link, error) {
	row := r.db.QueryRowContext(ctx,
		`select id, user_id, provider, provider_user_id, provider_email, created_at, updated_at
		 from oauth_account_links where provider=$1 and provider_user_id=$2`,
		provider, providerUserID,
	)
	var l accountlink.Link
	if err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderUserID, &l.ProviderEmail, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[AccountLinkRepo.GetByProviderID] scan")
	}
	return &l, nil
}

func (r *AccountLinkRepo) Upsert(ctx context.Context, link *accountlink.Link) error {
	_, err := r.db.ExecContext(ctx,
		`insert into oauth_account_links(id, user_id, provider, provider_user_id, provider_email, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7)
		 on conflict (provider, provider_user_id) do update
		 set user_id = excluded.user_id,
		     provider_email = excluded.provider_email,
		     updated_at = excluded.updated_at`,
		link.ID, link.UserID, link.Provider, link.ProviderUserID, link.ProviderEmail, link.CreatedAt, link.UpdatedAt,
	)
	return errors.Wrap(err, "[AccountLinkRepo.Upsert] insert")
}

func (r *AccountLinkRepo) ListByUser(ctx context.Context, userID string) ([]*accountlink.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`select id, user_id, provider, provider_user_id, provider_email, created_at, updated_at
		 from oauth_account_links where user_id=$1 order by created_at asc`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[AccountLinkRepo.ListByUser] query")
	}
	defer rows.Close()

	var links []*accountlink.Link
	for rows.Next() {
		var l accountlink.Link
		if err := rows.Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderUserID, &l.ProviderEmail, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "[AccountLinkRepo.ListByUser] scan")
		}
		links = append(links, &l)
	}
	return links, errors.Wrap(rows.Err(), "[AccountLinkRepo.ListByUser] rows")
}
