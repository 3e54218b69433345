// Package apitoken implements named, long-lived opaque credentials for
// programmatic access. Unlike signed assertions they are validated against
// storage on every call, so they always reflect the owner's live role.
package apitoken

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/secrets"
)

const ReasonRevokedByOwner = "revoked_by_owner"

// StoredAPIToken is the server-side row behind an API token.
type StoredAPIToken struct {
	ID            string
	UserID        string
	Name          string
	Description   *string
	TokenHash     string
	CreatedAt     time.Time
	ExpiresAt     *time.Time // nil = never expires
	LastUsedAt    *time.Time
	RevokedAt     *time.Time
	RevokedReason *string
}

// Metadata is the listable view of a token. It never carries the plaintext
// nor the hash.
type Metadata struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

func (t *StoredAPIToken) metadata() *Metadata {
	return &Metadata{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
		LastUsedAt:  t.LastUsedAt,
	}
}

type Manager struct {
	repo    Repo
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[apitoken.NewManager] repo is required")
	}

	m := &Manager{
		repo:    repo,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Create issues a new API token for the user. A nil ttl means the token never
// expires. The plaintext is returned exactly once.
func (m *Manager) Create(ctx context.Context, userID, name string, description *string, ttl *time.Duration) (string, *Metadata, error) {
	plaintext, err := secrets.RandomSecret(secrets.DefaultSecretBytes)
	if err != nil {
		return "", nil, errors.Wrap(err, "[apitoken.Manager.Create] RandomSecret")
	}

	now := m.nowFunc()
	row := &StoredAPIToken{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Name:        name,
		Description: description,
		TokenHash:   secrets.HashSecret(plaintext),
		CreatedAt:   now,
	}
	if ttl != nil {
		expiresAt := now.Add(*ttl)
		row.ExpiresAt = &expiresAt
	}

	if err := m.repo.Insert(ctx, row); err != nil {
		return "", nil, errors.Wrap(err, "[apitoken.Manager.Create] Insert")
	}
	return plaintext, row.metadata(), nil
}

// Validate resolves a plaintext token to its owning user id.
func (m *Manager) Validate(ctx context.Context, plaintext string) (string, error) {
	row, err := m.repo.GetByHash(ctx, secrets.HashSecret(plaintext))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", errors.Wrap(err, "[apitoken.Manager.Validate] GetByHash")
	}
	if row.ExpiresAt != nil && m.nowFunc().After(*row.ExpiresAt) {
		return "", apperrors.ErrExpired
	}
	if row.RevokedAt != nil {
		return "", apperrors.ErrRevoked
	}

	m.touchLastUsed(ctx, row.TokenHash)
	return row.UserID, nil
}

// List returns the user's tokens newest first, metadata only.
func (m *Manager) List(ctx context.Context, userID string) ([]*Metadata, error) {
	rows, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[apitoken.Manager.List] ListByUser")
	}

	out := make([]*Metadata, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.metadata())
	}
	return out, nil
}

// Revoke revokes a token by id on behalf of its owner. Revoking a token that
// does not exist, belongs to someone else, or is already revoked yields
// ErrNotFound: the caller learns only that nothing was affected.
func (m *Manager) Revoke(ctx context.Context, userID, tokenID string) error {
	affected, err := m.repo.Revoke(ctx, userID, tokenID, m.nowFunc(), ReasonRevokedByOwner)
	if err != nil {
		return errors.Wrap(err, "[apitoken.Manager.Revoke] Revoke")
	}
	if !affected {
		return apperrors.ErrNotFound
	}
	return nil
}

func (m *Manager) touchLastUsed(ctx context.Context, hash string) {
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	go func() {
		defer cancel()
		if err := m.repo.TouchLastUsed(touchCtx, hash, m.nowFunc()); err != nil {
			log.Debug().Err(err).Msg("api token last_used touch failed")
		}
	}()
}
