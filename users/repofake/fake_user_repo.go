package userrepofake

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/taskhive/taskhive-server/internal/errors"
	"github.com/taskhive/taskhive-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byID    map[string]*users.User
	byEmail map[string]string // email to user ID
	lock    sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:    make(map[string]*users.User),
		byEmail: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	u := *user
	ur.byID[u.ID] = &u
	ur.byEmail[u.Email] = u.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *ur.byID[id]
	return &cp, nil
}

// SetRole flips a stored user's role; test helper for live-role scenarios.
func (ur *FakeUserRepo) SetRole(id string, role users.Role) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if u, ok := ur.byID[id]; ok {
		u.Role = role
	}
}
