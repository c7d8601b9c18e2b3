package interceptor

import (
	"context"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/refresh"
	"github.com/openkcm/session-keeper/pkg/session"
)

// SessionStore holds the current session of one logical client. When a
// repository is attached, every change is written through to it.
type SessionStore struct {
	repo session.Repository
	now  func() time.Time

	mu        sync.RWMutex
	current   session.Session
	onCleared []func(context.Context, session.Session)
}

type SessionOption func(*SessionStore)

// WithRepository persists the session on every change.
func WithRepository(repo session.Repository) SessionOption {
	return func(s *SessionStore) { s.repo = repo }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) { s.now = now }
}

func NewSessionStore(initial session.Session, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		current: initial,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SessionStore) Load() session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Store replaces the session, for example after a new login.
func (s *SessionStore) Store(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	return s.persist(ctx, sess)
}

// ApplyRefresh folds a refresh result into the session. The refresh token is
// kept when the endpoint did not rotate it.
func (s *SessionStore) ApplyRefresh(ctx context.Context, result refresh.Result) {
	s.mu.Lock()
	s.current.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		s.current.RefreshToken = result.RefreshToken
	}
	if result.ExpiresIn > 0 {
		s.current.ExpiresAt = s.now().Add(result.ExpiresIn)
	}
	sess := s.current
	s.mu.Unlock()

	if err := s.persist(ctx, sess); err != nil {
		slogctx.Error(ctx, "Failed to persist refreshed session", "session_id", sess.ID, "error", err)
	}
}

// Clear destroys the session. Listeners run only when a session was present.
func (s *SessionStore) Clear(ctx context.Context) {
	s.mu.Lock()
	old := s.current
	s.current = session.Session{}
	listeners := s.onCleared
	s.mu.Unlock()

	if old.Empty() {
		return
	}

	slogctx.Info(ctx, "Session cleared", "session_id", old.ID)

	if s.repo != nil && old.ID != "" {
		if err := s.repo.DeleteSession(ctx, old.ID); err != nil {
			slogctx.Error(ctx, "Failed to delete session", "session_id", old.ID, "error", err)
		}
	}

	for _, fn := range listeners {
		fn(ctx, old)
	}
}

// OnCleared registers fn to be called when the session is destroyed, so the
// application can route the user back to authentication.
func (s *SessionStore) OnCleared(fn func(context.Context, session.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onCleared = append(s.onCleared, fn)
}

func (s *SessionStore) persist(ctx context.Context, sess session.Session) error {
	if s.repo == nil || sess.ID == "" {
		return nil
	}

	return s.repo.StoreSession(ctx, sess)
}
