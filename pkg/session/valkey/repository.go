// Package sessionvalkey keeps sessions and revoked token IDs in ValKey.
package sessionvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/session-keeper/pkg/session"
)

const (
	objectTypeSession    = "session"
	objectTypeRevocation = "revoked"
)

type Repository struct {
	store *store
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (s session.Session, _ error) {
	if err := r.store.Get(ctx, objectTypeSession, sessionID, &s); err != nil {
		return session.Session{}, fmt.Errorf("getting session from store: %w", err)
	}

	return s, nil
}

func (r *Repository) StoreSession(ctx context.Context, s session.Session) error {
	if err := r.store.Set(ctx, objectTypeSession, s.ID, s, 0); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.store.Destroy(ctx, objectTypeSession, sessionID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	return nil
}

// RevocationList stores revoked token IDs as keys expiring together with the token.
type RevocationList struct {
	store *store
	now   func() time.Time
}

var _ session.RevocationList = (*RevocationList)(nil)

func NewRevocationList(valkeyClient valkey.Client, prefix string) *RevocationList {
	return &RevocationList{
		store: newStore(valkeyClient, prefix),
		now:   time.Now,
	}
}

func (l *RevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	if err := l.store.Set(ctx, objectTypeRevocation, tokenID, until.Unix(), ttl); err != nil {
		return fmt.Errorf("storing revocation: %w", err)
	}

	return nil
}

func (l *RevocationList) RevokeIfAbsent(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return false, nil
	}

	stored, err := l.store.SetNX(ctx, objectTypeRevocation, tokenID, until.Unix(), ttl)
	if err != nil {
		return false, fmt.Errorf("storing revocation: %w", err)
	}

	return stored, nil
}

func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ok, err := l.store.Exists(ctx, objectTypeRevocation, tokenID)
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}

	return ok, nil
}
