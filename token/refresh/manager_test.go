package refresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/secrets"
	"github.com/taskhive/taskhive-server/token/refresh"
	refreshrepofake "github.com/taskhive/taskhive-server/token/refresh/repofake"
)

const testUserID = "user-1"

func newTestManager(t *testing.T, options ...refresh.ManagerOption) (*refresh.Manager, *refreshrepofake.FakeRefreshTokenRepo) {
	t.Helper()

	repo := refreshrepofake.NewFakeRefreshTokenRepo()
	m, err := refresh.NewManager(repo, options...)
	require.NoError(t, err)
	return m, repo
}

func TestIssueAndValidate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	plaintext, err := m.Issue(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, plaintext, 64)

	userID, err := m.Validate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, testUserID, userID)
}

func TestValidateUnknownToken(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Validate(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestValidateExpired(t *testing.T) {
	now := time.Now()
	m, _ := newTestManager(t, refresh.WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	plaintext, err := m.Issue(ctx, testUserID)
	require.NoError(t, err)

	now = now.Add(refresh.TTL + time.Minute)
	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestRevokeThenValidate(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	plaintext, err := m.Issue(ctx, testUserID)
	require.NoError(t, err)

	_, err = m.Validate(ctx, plaintext)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, plaintext, refresh.ReasonUserLogout))

	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	row := repo.Row(secrets.HashSecret(plaintext))
	require.NotNil(t, row.RevokedAt)
	require.Equal(t, refresh.ReasonUserLogout, *row.RevokedReason)

	// Idempotent: revoking again is not an error.
	require.NoError(t, m.Revoke(ctx, plaintext, refresh.ReasonUserLogout))
}

func TestRotateIsOneTimeUse(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	oldToken, err := m.Issue(ctx, testUserID)
	require.NoError(t, err)

	userID, newToken, err := m.Rotate(ctx, oldToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, userID)
	require.NotEqual(t, oldToken, newToken)

	// The superseded token can never authenticate again.
	_, err = m.Validate(ctx, oldToken)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	_, _, err = m.Rotate(ctx, oldToken)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	row := repo.Row(secrets.HashSecret(oldToken))
	require.Equal(t, refresh.ReasonRotated, *row.RevokedReason)

	_, err = m.Validate(ctx, newToken)
	require.NoError(t, err)
}

func TestEnforceCapRevokesOldest(t *testing.T) {
	now := time.Now()
	m, repo := newTestManager(t, refresh.WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	tokens := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		now = now.Add(time.Minute)
		plaintext, err := m.Issue(ctx, testUserID)
		require.NoError(t, err)
		tokens = append(tokens, plaintext)
	}

	require.NoError(t, m.EnforceCap(ctx, testUserID, 5))

	// The two oldest are gone, the five newest survive.
	for i, plaintext := range tokens {
		_, err := m.Validate(ctx, plaintext)
		if i < 2 {
			require.ErrorIs(t, err, apperrors.ErrRevoked, "token %d should be revoked", i)
			row := repo.Row(secrets.HashSecret(plaintext))
			require.Equal(t, refresh.ReasonTokenLimitExceeded, *row.RevokedReason)
		} else {
			require.NoError(t, err, "token %d should survive", i)
		}
	}

	// Under the cap nothing changes.
	require.NoError(t, m.EnforceCap(ctx, testUserID, 5))
	active, err := repo.ListActiveByUser(ctx, testUserID, now)
	require.NoError(t, err)
	require.Len(t, active, 5)
}

func TestValidateTouchesLastUsed(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	plaintext, err := m.Issue(ctx, testUserID)
	require.NoError(t, err)

	_, err = m.Validate(ctx, plaintext)
	require.NoError(t, err)

	hash := secrets.HashSecret(plaintext)
	require.Eventually(t, func() bool {
		row := repo.Row(hash)
		return row != nil && row.LastUsedAt != nil
	}, time.Second, 10*time.Millisecond)
}
