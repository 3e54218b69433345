// Package impersonation implements the short-lived opaque credential that
// lets an administrator act as another user. Revocation is hard deletion: a
// stopped session leaves no row behind, and absence reads as revoked.
package impersonation

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/secrets"
)

// TTL is the impersonation session lifetime.
const TTL = time.Hour

// StoredSession is the server-side row behind an impersonation token.
type StoredSession struct {
	ID           string
	AdminUserID  string
	TargetUserID string
	TokenHash    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type Manager struct {
	repo    Repo
	ttl     time.Duration
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
		return nil, errors.New("[impersonation.NewManager] repo is required")
	}

	m := &Manager{
		repo:    repo,
		ttl:     TTL,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Start issues an impersonation token for admin acting as target. Whether the
// pairing is allowed at all (no self-impersonation, no admin targets) is the
// orchestrator's call; the store only mints credentials.
func (m *Manager) Start(ctx context.Context, adminUserID, targetUserID string) (string, error) {
	plaintext, err := secrets.RandomSecret(secrets.DefaultSecretBytes)
	if err != nil {
		return "", errors.Wrap(err, "[impersonation.Manager.Start] RandomSecret")
	}

	now := m.nowFunc()
	row := &StoredSession{
		ID:           ulid.Make().String(),
		AdminUserID:  adminUserID,
		TargetUserID: targetUserID,
		TokenHash:    secrets.HashSecret(plaintext),
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}

	if err := m.repo.Insert(ctx, row); err != nil {
		return "", errors.Wrap(err, "[impersonation.Manager.Start] Insert")
	}
	return plaintext, nil
}

// Validate resolves a plaintext token to its session. A missing row means the
// session was stopped (or never existed); both read as revoked, so a stopped
// token is indistinguishable from a forged one.
func (m *Manager) Validate(ctx context.Context, plaintext string) (*StoredSession, error) {
	row, err := m.repo.GetByHash(ctx, secrets.HashSecret(plaintext))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrRevoked
		}
		return nil, errors.Wrap(err, "[impersonation.Manager.Validate] GetByHash")
	}
	if m.nowFunc().After(row.ExpiresAt) {
		return nil, apperrors.ErrExpired
	}
	return row, nil
}

// Stop hard-deletes the session. Stopping an unknown or already-stopped
// session is not an error.
func (m *Manager) Stop(ctx context.Context, plaintext string) error {
	deleted, err := m.repo.DeleteByHash(ctx, secrets.HashSecret(plaintext))
	if err != nil {
		return errors.Wrap(err, "[impersonation.Manager.Stop] DeleteByHash")
	}
	if !deleted {
		log.Debug().Msg("stop of absent impersonation session")
	}
	return nil
}
