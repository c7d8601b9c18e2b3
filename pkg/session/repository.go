package session

import (
	"context"
	"time"
)

// Repository persists client sessions between process runs.
type Repository interface {
	LoadSession(ctx context.Context, sessionID string) (Session, error)
	StoreSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// RevocationList records token IDs that must no longer be accepted.
// Entries may be forgotten once the revoked token would have expired anyway.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// RevokeIfAbsent revokes tokenID unless it is already revoked, in one
	// atomic step. It reports whether this call performed the revocation.
	RevokeIfAbsent(ctx context.Context, tokenID string, until time.Time) (bool, error)
}
