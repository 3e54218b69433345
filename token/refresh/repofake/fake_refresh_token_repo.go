package refreshrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	rows map[string]*refresh.StoredRefreshToken // keyed by token hash
	lock sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		rows: make(map[string]*refresh.StoredRefreshToken),
	}
}

func (tr *FakeRefreshTokenRepo) Insert(ctx context.Context, token *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	cp := *token
	tr.rows[cp.TokenHash] = &cp
	return nil
}

func (tr *FakeRefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	row, ok := tr.rows[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (tr *FakeRefreshTokenRepo) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, reason string) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	row, ok := tr.rows[tokenHash]
	if !ok || row.RevokedAt != nil {
		return false, nil
	}
	row.RevokedAt = &revokedAt
	row.RevokedReason = &reason
	return true, nil
}

func (tr *FakeRefreshTokenRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	active := make([]*refresh.StoredRefreshToken, 0)
	for _, row := range tr.rows {
		if row.UserID != userID || row.RevokedAt != nil || now.After(row.ExpiresAt) {
			continue
		}
		cp := *row
		active = append(active, &cp)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (tr *FakeRefreshTokenRepo) TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if row, ok := tr.rows[tokenHash]; ok {
		row.LastUsedAt = &usedAt
	}
	return nil
}

// Row exposes a stored row by hash for test assertions.
func (tr *FakeRefreshTokenRepo) Row(tokenHash string) *refresh.StoredRefreshToken {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	row, ok := tr.rows[tokenHash]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}
