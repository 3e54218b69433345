package apitoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/apitoken"
	apitokenrepofake "github.com/taskhive/taskhive-server/token/apitoken/repofake"
)

func newTestManager(t *testing.T, options ...apitoken.ManagerOption) *apitoken.Manager {
	t.Helper()

	m, err := apitoken.NewManager(apitokenrepofake.NewFakeAPITokenRepo(), options...)
	require.NoError(t, err)
	return m
}

func TestCreateAndValidateNeverExpires(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	plaintext, meta, err := m.Create(ctx, "user-1", "ci", nil, nil)
	require.NoError(t, err)
	require.Len(t, plaintext, 64)
	require.Equal(t, "ci", meta.Name)
	require.Nil(t, meta.ExpiresAt)

	userID, err := m.Validate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestValidateExpired(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, apitoken.WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	ttl := time.Hour
	plaintext, meta, err := m.Create(ctx, "user-1", "short-lived", nil, &ttl)
	require.NoError(t, err)
	require.NotNil(t, meta.ExpiresAt)

	now = now.Add(2 * time.Hour)
	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestListNewestFirstWithoutSecrets(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, apitoken.WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	desc := "deploy pipeline"
	_, _, err := m.Create(ctx, "user-1", "older", &desc, nil)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, _, err = m.Create(ctx, "user-1", "newer", nil, nil)
	require.NoError(t, err)
	_, _, err = m.Create(ctx, "user-2", "someone-elses", nil, nil)
	require.NoError(t, err)

	list, err := m.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "newer", list[0].Name)
	require.Equal(t, "older", list[1].Name)
	require.Equal(t, desc, *list[1].Description)
}

func TestRevokeEnforcesOwnership(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	plaintext, meta, err := m.Create(ctx, "user-1", "ci", nil, nil)
	require.NoError(t, err)

	// Someone else cannot revoke it, and learns nothing beyond "not found".
	require.ErrorIs(t, m.Revoke(ctx, "user-2", meta.ID), apperrors.ErrNotFound)
	_, err = m.Validate(ctx, plaintext)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, "user-1", meta.ID))
	_, err = m.Validate(ctx, plaintext)
	require.ErrorIs(t, err, apperrors.ErrRevoked)

	// Already revoked reads as not found to the caller.
	require.ErrorIs(t, m.Revoke(ctx, "user-1", meta.ID), apperrors.ErrNotFound)
}

func TestRevokeUnknownID(t *testing.T) {
	m := newTestManager(t)
	require.ErrorIs(t, m.Revoke(context.Background(), "user-1", "no-such-id"), apperrors.ErrNotFound)
}
