package linkrepofake

import (
	"context"
	"sort"
	"sync"

	"github.com/taskhive/taskhive-server/accountlink"
	apperrors "github.com/taskhive/taskhive-server/internal/errors"
)

var _ accountlink.Repo = (*FakeLinkRepo)(nil)

type FakeLinkRepo struct {
	rows map[string]*accountlink.Link // keyed by provider + "\x00" + provider user ID
	lock sync.RWMutex
}

func NewFakeLinkRepo() *FakeLinkRepo {
	return &FakeLinkRepo{
		rows: make(map[string]*accountlink.Link),
	}
}

func key(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (lr *FakeLinkRepo) GetByProviderID(ctx context.Context, provider, providerUserID string) (*accountlink.Link, error) {
	lr.lock.RLock()
	defer lr.lock.RUnlock()

	row, ok := lr.rows[key(provider, providerUserID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (lr *FakeLinkRepo) Upsert(ctx context.Context, link *accountlink.Link) error {
	lr.lock.Lock()
	defer lr.lock.Unlock()

	k := key(link.Provider, link.ProviderUserID)
	if existing, ok := lr.rows[k]; ok {
		existing.UserID = link.UserID
		existing.ProviderEmail = link.ProviderEmail
		existing.UpdatedAt = link.UpdatedAt
		return nil
	}
	cp := *link
	lr.rows[k] = &cp
	return nil
}

func (lr *FakeLinkRepo) ListByUser(ctx context.Context, userID string) ([]*accountlink.Link, error) {
	lr.lock.RLock()
	defer lr.lock.RUnlock()

	links := make([]*accountlink.Link, 0)
	for _, row := range lr.rows {
		if row.UserID != userID {
			continue
		}
		cp := *row
		links = append(links, &cp)
	}

	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}

// Len reports the number of stored links; test helper.
func (lr *FakeLinkRepo) Len() int {
	lr.lock.RLock()
	defer lr.lock.RUnlock()
	return len(lr.rows)
}
