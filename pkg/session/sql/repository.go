// Package sessionsql keeps sessions and revoked token IDs in PostgreSQL.
// The database handle is obtained lazily on every call, so an unreachable
// database surfaces as ErrConnectionUnavailable on use rather than at startup.
package sessionsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openkcm/session-keeper/internal/dbconn"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/pkg/session"
)

// EngineSource is satisfied by *dbconn.Manager.
type EngineSource interface {
	Get(ctx context.Context) (dbconn.Engine, error)
}

type Repository struct {
	engines EngineSource
}

var _ session.Repository = (*Repository)(nil)

func NewRepository(engines EngineSource) *Repository {
	return &Repository{
		engines: engines,
	}
}

func (r *Repository) LoadSession(ctx context.Context, sessionID string) (session.Session, error) {
	db, err := r.engines.Get(ctx)
	if err != nil {
		return session.Session{}, err
	}

	var (
		s         session.Session
		expiresAt *time.Time
	)
	row := db.QueryRow(ctx,
		`SELECT id, subject, access_token, refresh_token, expires_at FROM sessions WHERE id = $1;`, sessionID)
	if err := row.Scan(&s.ID, &s.Subject, &s.AccessToken, &s.RefreshToken, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, serviceerr.ErrNotFound
		}

		return session.Session{}, fmt.Errorf("scanning session: %w", err)
	}

	if expiresAt != nil {
		s.ExpiresAt = *expiresAt
	}

	return s, nil
}

func (r *Repository) StoreSession(ctx context.Context, s session.Session) error {
	db, err := r.engines.Get(ctx)
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if !s.ExpiresAt.IsZero() {
		expiresAt = &s.ExpiresAt
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO sessions (id, subject, access_token, refresh_token, expires_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			     subject = EXCLUDED.subject,
			     access_token = EXCLUDED.access_token,
			     refresh_token = EXCLUDED.refresh_token,
			     expires_at = EXCLUDED.expires_at,
			     updated_at = now();`,
		s.ID, s.Subject, s.AccessToken, s.RefreshToken, expiresAt,
	); err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	db, err := r.engines.Get(ctx)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

type RevocationList struct {
	engines EngineSource
}

var _ session.RevocationList = (*RevocationList)(nil)

func NewRevocationList(engines EngineSource) *RevocationList {
	return &RevocationList{
		engines: engines,
	}
}

func (l *RevocationList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	db, err := l.engines.Get(ctx)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
			 ON CONFLICT (token_id) DO NOTHING;`,
		tokenID, until,
	); err != nil {
		return fmt.Errorf("inserting into revoked_tokens: %w", err)
	}

	return nil
}

func (l *RevocationList) RevokeIfAbsent(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	db, err := l.engines.Get(ctx)
	if err != nil {
		return false, err
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, expires_at) VALUES ($1, $2)
			 ON CONFLICT (token_id) DO NOTHING;`,
		tokenID, until,
	)
	if err != nil {
		return false, fmt.Errorf("inserting into revoked_tokens: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (l *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	db, err := l.engines.Get(ctx)
	if err != nil {
		return false, err
	}

	var revoked bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at > now());`, tokenID,
	).Scan(&revoked); err != nil {
		return false, fmt.Errorf("querying revoked_tokens: %w", err)
	}

	return revoked, nil
}

// Purge deletes revocations whose tokens have expired and returns how many were removed.
func (l *RevocationList) Purge(ctx context.Context) (int64, error) {
	db, err := l.engines.Get(ctx)
	if err != nil {
		return 0, err
	}

	ct, err := db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= now();`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired revocations: %w", err)
	}

	return ct.RowsAffected(), nil
}
