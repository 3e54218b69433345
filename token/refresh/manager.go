// Package refresh implements the long-lived opaque credential that anchors a
// login session. The client holds a random secret; the server stores only its
// SHA-256 hash with expiry and revocation metadata. Rotation is strict
// one-time-use: a superseded token can never authenticate again.
package refresh

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/internal/utils"
	"github.com/taskhive/taskhive-server/secrets"
)

const (
	// TTL is the refresh token lifetime.
	TTL = 30 * 24 * time.Hour

	// DefaultMaxPerUser bounds refresh-token accumulation from repeated logins.
	DefaultMaxPerUser = 5

	ReasonRotated            = "rotated"
	ReasonUserLogout         = "user_logout"
	ReasonTokenLimitExceeded = "token_limit_exceeded"
)

// StoredRefreshToken is the server-side row behind a refresh token. The
// plaintext secret is returned to the caller exactly once and never stored.
type StoredRefreshToken struct {
	ID            string
	UserID        string
	TokenHash     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	LastUsedAt    *time.Time
	RevokedAt     *time.Time
	RevokedReason *string
}

// Manager implements issuance, validation, rotation and revocation over a Repo.
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

func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

func NewManager(repo Repo, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[refresh.NewManager] repo is required")
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

// Issue generates a fresh secret, stores its hash and returns the plaintext.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	plaintext, err := secrets.RandomSecret(secrets.DefaultSecretBytes)
	if err != nil {
		return "", errors.Wrap(err, "[refresh.Manager.Issue] RandomSecret")
	}

	now := m.nowFunc()
	row := &StoredRefreshToken{
		ID:        ulid.Make().String(),
		UserID:    userID,
		TokenHash: secrets.HashSecret(plaintext),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.repo.Insert(ctx, row); err != nil {
		return "", errors.Wrap(err, "[refresh.Manager.Issue] Insert")
	}
	return plaintext, nil
}

// Validate resolves a plaintext token to its owning user id. The last-used
// timestamp is touched best-effort; a failed touch never fails validation.
func (m *Manager) Validate(ctx context.Context, plaintext string) (string, error) {
	row, err := m.lookup(ctx, plaintext)
	if err != nil {
		return "", err
	}

	m.touchLastUsed(ctx, row.TokenHash)
	return row.UserID, nil
}

// Rotate atomically replaces a still-valid token with a new one. The old row
// is revoked with a conditional update; if another rotation won the race the
// update affects zero rows and the call fails with ErrRevoked, preserving
// one-time-use under concurrency.
func (m *Manager) Rotate(ctx context.Context, plaintext string) (userID string, newPlaintext string, err error) {
	row, err := m.lookup(ctx, plaintext)
	if err != nil {
		return "", "", err
	}

	revoked, err := m.repo.Revoke(ctx, row.TokenHash, m.nowFunc(), ReasonRotated)
	if err != nil {
		return "", "", errors.Wrap(err, "[refresh.Manager.Rotate] Revoke")
	}
	if !revoked {
		// Lost a concurrent rotation of the same token.
		return "", "", apperrors.ErrRevoked
	}

	newPlaintext, err = m.Issue(ctx, row.UserID)
	if err != nil {
		return "", "", errors.Wrap(err, "[refresh.Manager.Rotate] Issue")
	}
	return row.UserID, newPlaintext, nil
}

// Revoke marks the token revoked with the given reason. Revoking an unknown
// or already-revoked token is not an error: logout must be idempotent.
func (m *Manager) Revoke(ctx context.Context, plaintext, reason string) error {
	_, err := m.repo.Revoke(ctx, secrets.HashSecret(plaintext), m.nowFunc(), reason)
	if err != nil {
		return errors.Wrap(err, "[refresh.Manager.Revoke] Revoke")
	}
	return nil
}

// EnforceCap revokes the oldest active tokens of a user beyond maxCount with
// reason token_limit_exceeded.
func (m *Manager) EnforceCap(ctx context.Context, userID string, maxCount int) error {
	now := m.nowFunc()
	active, err := m.repo.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return errors.Wrap(err, "[refresh.Manager.EnforceCap] ListActiveByUser")
	}
	if len(active) <= maxCount {
		return nil
	}

	// ListActiveByUser returns newest first; everything past maxCount goes.
	for _, row := range active[maxCount:] {
		if _, err := m.repo.Revoke(ctx, row.TokenHash, now, ReasonTokenLimitExceeded); err != nil {
			return errors.Wrap(err, "[refresh.Manager.EnforceCap] Revoke")
		}
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, plaintext string) (*StoredRefreshToken, error) {
	row, err := m.repo.GetByHash(ctx, secrets.HashSecret(plaintext))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, errors.Wrap(err, "[refresh.Manager] GetByHash")
	}
	if m.nowFunc().After(row.ExpiresAt) {
		return nil, apperrors.ErrExpired
	}
	if row.RevokedAt != nil {
		log.Debug().Str("reason", utils.Value(row.RevokedReason)).Msg("refresh token already revoked")
		return nil, apperrors.ErrRevoked
	}
	return row, nil
}

func (m *Manager) touchLastUsed(ctx context.Context, hash string) {
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	go func() {
		defer cancel()
		if err := m.repo.TouchLastUsed(touchCtx, hash, m.nowFunc()); err != nil {
			log.Debug().Err(err).Msg("refresh token last_used touch failed")
		}
	}()
}
