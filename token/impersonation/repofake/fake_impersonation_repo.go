package impersonationrepofake

import (
	"context"
	"sync"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/token/impersonation"
)

var _ impersonation.Repo = (*FakeImpersonationRepo)(nil)

type FakeImpersonationRepo struct {
	rows map[string]*impersonation.StoredSession // keyed by token hash
	lock sync.RWMutex
}

func NewFakeImpersonationRepo() *FakeImpersonationRepo {
	return &FakeImpersonationRepo{
		rows: make(map[string]*impersonation.StoredSession),
	}
}

func (ir *FakeImpersonationRepo) Insert(ctx context.Context, session *impersonation.StoredSession) error {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	cp := *session
	ir.rows[cp.TokenHash] = &cp
	return nil
}

func (ir *FakeImpersonationRepo) GetByHash(ctx context.Context, tokenHash string) (*impersonation.StoredSession, error) {
	ir.lock.RLock()
	defer ir.lock.RUnlock()

	row, ok := ir.rows[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (ir *FakeImpersonationRepo) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	if _, ok := ir.rows[tokenHash]; !ok {
		return false, nil
	}
	delete(ir.rows, tokenHash)
	return true, nil
}
