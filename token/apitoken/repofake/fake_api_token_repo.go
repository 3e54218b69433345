package apitokenrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/apitoken"
)

var _ apitoken.Repo = (*FakeAPITokenRepo)(nil)

type FakeAPITokenRepo struct {
	rows map[string]*apitoken.StoredAPIToken // keyed by token hash
	lock sync.RWMutex
}

func NewFakeAPITokenRepo() *FakeAPITokenRepo {
	return &FakeAPITokenRepo{
		rows: make(map[string]*apitoken.StoredAPIToken),
	}
}

func (tr *FakeAPITokenRepo) Insert(ctx context.Context, token *apitoken.StoredAPIToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	cp := *token
	tr.rows[cp.TokenHash] = &cp
	return nil
}

func (tr *FakeAPITokenRepo) GetByHash(ctx context.Context, tokenHash string) (*apitoken.StoredAPIToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	row, ok := tr.rows[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (tr *FakeAPITokenRepo) ListByUser(ctx context.Context, userID string) ([]*apitoken.StoredAPIToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rows := make([]*apitoken.StoredAPIToken, 0)
	for _, row := range tr.rows {
		if row.UserID != userID {
			continue
		}
		cp := *row
		rows = append(rows, &cp)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (tr *FakeAPITokenRepo) Revoke(ctx context.Context, userID, tokenID string, revokedAt time.Time, reason string) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for _, row := range tr.rows {
		if row.ID != tokenID || row.UserID != userID || row.RevokedAt != nil {
			continue
		}
		row.RevokedAt = &revokedAt
		row.RevokedReason = &reason
		return true, nil
	}
	return false, nil
}

func (tr *FakeAPITokenRepo) TouchLastUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if row, ok := tr.rows[tokenHash]; ok {
		row.LastUsedAt = &usedAt
	}
	return nil
}
