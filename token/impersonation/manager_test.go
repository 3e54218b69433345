package impersonation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/impersonation"
	impersonationrepofake "github.com/taskhive/taskhive-server/token/impersonation/repofake"
)

func newTestManager(t *testing.T, options ...impersonation.ManagerOption) *impersonation.Manager {
	t.Helper()

	m, err := impersonation.NewManager(impersonationrepofake.NewFakeImpersonationRepo(), options...)
	require.NoError(t, err)
	return m
}

func TestStartAndValidate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	plaintext, err := m.Start(ctx, "admin-1", "user-2")
	require.NoError(t, err)
	require.Len(t, plaintext, 64)

	session, err := m.Validate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, "admin-1", session.AdminUserID)
	require.Equal(t, "user-2", session.TargetUserID)
	require.Equal(t, time.Hour, session.ExpiresAt.Sub(session.CreatedAt))
}

func TestValidateAfterStop(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	plaintext, err := m.Start(ctx, "admin-1", "user-2")
	require.NoError(t, err)

	require.NoError(t, m.Stop(ctx, plaintext))

	// The row is gone; the token reads as revoked.
	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	// Stop is idempotent.
	require.NoError(t, m.Stop(ctx, plaintext))
}

func TestValidateExpired(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, impersonation.WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	plaintext, err := m.Start(ctx, "admin-1", "user-2")
	require.NoError(t, err)

	now = now.Add(impersonation.TTL + time.Minute)
	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestValidateUnknownToken(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Validate(context.Background(), "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.ErrorIs(t, err, apperrors.ErrRevoked)
}
