// Package sessionmemory keeps sessions and revoked token IDs in process memory.
package sessionmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/pkg/session"
)

const cleanupInterval = time.Minute

type Repository struct {
	sessions *cache.Cache
}

var _ session.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		sessions: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) LoadSession(_ context.Context, sessionID string) (session.Session, error) {
	v, ok := r.sessions.Get(sessionID)
	if !ok {
		return session.Session{}, serviceerr.ErrNotFound
	}

	return v.(session.Session), nil
}

func (r *Repository) StoreSession(_ context.Context, s session.Session) error {
	r.sessions.Set(s.ID, s, cache.NoExpiration)
	return nil
}

func (r *Repository) DeleteSession(_ context.Context, sessionID string) error {
	r.sessions.Delete(sessionID)
	return nil
}

// RevocationList forgets a revoked ID once the token it belongs to has expired.
type RevocationList struct {
	revoked *cache.Cache
	now     func() time.Time
}

var _ session.RevocationList = (*RevocationList)(nil)

func NewRevocationList() *RevocationList {
	return &RevocationList{
		revoked: cache.New(cache.NoExpiration, cleanupInterval),
		now:     time.Now,
	}
}

func (l *RevocationList) Revoke(_ context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	l.revoked.Set(tokenID, until, ttl)

	return nil
}

func (l *RevocationList) RevokeIfAbsent(_ context.Context, tokenID string, until time.Time) (bool, error) {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return false, nil
	}

	return l.revoked.Add(tokenID, until, ttl) == nil, nil
}

func (l *RevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := l.revoked.Get(tokenID)
	return ok, nil
}
