package grant_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-keeper/internal/grant"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/internal/token"
	sessionmemory "github.com/openkcm/session-keeper/pkg/session/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clock is read by server goroutines while tests advance it.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now()}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newService(t *testing.T, c *clock) *grant.Service {
	t.Helper()

	codec := token.NewCodec([]byte(testSecret), token.WithClock(c.Now))
	svc, err := grant.NewService(codec, sessionmemory.NewRevocationList(), time.Minute, time.Hour)
	require.NoError(t, err)

	return svc
}

func TestNewService_TTLInvariant(t *testing.T) {
	codec := token.NewCodec([]byte(testSecret))

	tests := []struct {
		name       string
		accessTTL  time.Duration
		refreshTTL time.Duration
		wantErr    bool
	}{
		{name: "Access shorter than refresh", accessTTL: time.Minute, refreshTTL: time.Hour},
		{name: "Equal TTLs", accessTTL: time.Hour, refreshTTL: time.Hour, wantErr: true},
		{name: "Access longer than refresh", accessTTL: 2 * time.Hour, refreshTTL: time.Hour, wantErr: true},
		{name: "Zero access TTL", refreshTTL: time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grant.NewService(codec, sessionmemory.NewRevocationList(), tt.accessTTL, tt.refreshTTL)
			if tt.wantErr {
				assert.ErrorIs(t, err, serviceerr.ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_LoginAndAuthenticate(t *testing.T) {
	c := newClock()
	svc := newService(t, c)

	_, err := svc.Login(t.Context(), "")
	require.ErrorIs(t, err, serviceerr.ErrInvalidRequest)

	tokens, err := svc.Login(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, tokens.ExpiresIn)

	claims, err := svc.Authenticate(t.Context(), tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = svc.Authenticate(t.Context(), tokens.RefreshToken)
	assert.ErrorIs(t, err, serviceerr.ErrTokenMalformed, "refresh tokens are not accepted as access tokens")

	c.Advance(2 * time.Minute)
	_, err = svc.Authenticate(t.Context(), tokens.AccessToken)
	assert.ErrorIs(t, err, serviceerr.ErrTokenExpired)
}

func TestService_RefreshRotates(t *testing.T) {
	c := newClock()
	svc := newService(t, c)

	first, err := svc.Login(t.Context(), "alice")
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	second, err := svc.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims, err := svc.Authenticate(t.Context(), second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	_, err = svc.Refresh(t.Context(), first.RefreshToken)
	require.ErrorIs(t, err, serviceerr.ErrRefreshRevoked, "a rotated refresh token cannot be reused")
	assertCode(t, err, grant.ErrorRefreshRevoked)
}

func TestService_RefreshFailures(t *testing.T) {
	c := newClock()
	svc := newService(t, c)

	tokens, err := svc.Login(t.Context(), "bob")
	require.NoError(t, err)

	_, err = svc.Refresh(t.Context(), tokens.AccessToken)
	assert.ErrorIs(t, err, serviceerr.ErrTokenMalformed, "access tokens cannot be used to refresh")

	_, err = svc.Refresh(t.Context(), "garbage")
	assert.ErrorIs(t, err, serviceerr.ErrTokenMalformed)

	c.Advance(2 * time.Hour)
	_, err = svc.Refresh(t.Context(), tokens.RefreshToken)
	require.ErrorIs(t, err, serviceerr.ErrRefreshRevoked, "expired refresh tokens are handled like revoked ones")
	assertCode(t, err, grant.ErrorRefreshExpired)
}

func TestService_Logout(t *testing.T) {
	c := newClock()
	svc := newService(t, c)

	tokens, err := svc.Login(t.Context(), "carol")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(t.Context(), tokens.RefreshToken))
	require.NoError(t, svc.Logout(t.Context(), tokens.RefreshToken), "logging out twice")

	_, err = svc.Refresh(t.Context(), tokens.RefreshToken)
	assert.ErrorIs(t, err, serviceerr.ErrRefreshRevoked)

	c.Advance(2 * time.Hour)
	assert.NoError(t, svc.Logout(t.Context(), tokens.RefreshToken), "expired tokens need no revocation")
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error {
	return serviceerr.ErrConnectionUnavailable
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("boom")
}

func (failingRevocations) RevokeIfAbsent(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("boom")
}

// slowRevocations delays every lookup the way a networked store does.
type slowRevocations struct {
	*sessionmemory.RevocationList
}

func (l slowRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	time.Sleep(time.Millisecond)
	return l.RevocationList.IsRevoked(ctx, tokenID)
}

func (l slowRevocations) RevokeIfAbsent(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	time.Sleep(time.Millisecond)
	return l.RevocationList.RevokeIfAbsent(ctx, tokenID, until)
}

func TestService_ConcurrentRefreshRotatesOnce(t *testing.T) {
	codec := token.NewCodec([]byte(testSecret))
	svc, err := grant.NewService(codec, slowRevocations{sessionmemory.NewRevocationList()}, time.Minute, time.Hour)
	require.NoError(t, err)

	tokens, err := svc.Login(t.Context(), "erin")
	require.NoError(t, err)

	const callers = 50

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		rotations int
		revoked   int
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := svc.Refresh(context.Background(), tokens.RefreshToken)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rotations++
			case errors.Is(err, serviceerr.ErrRefreshRevoked):
				revoked++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, rotations, "one refresh token rotates exactly once")
	assert.Equal(t, callers-1, revoked)
}

func TestService_RevocationBackendFailure(t *testing.T) {
	codec := token.NewCodec([]byte(testSecret))
	svc, err := grant.NewService(codec, failingRevocations{}, time.Minute, time.Hour)
	require.NoError(t, err)

	tokens, err := svc.Login(t.Context(), "dave")
	require.NoError(t, err)

	_, err = svc.Refresh(t.Context(), tokens.RefreshToken)
	assert.ErrorIs(t, err, serviceerr.ErrServerError)

	err = svc.Logout(t.Context(), tokens.RefreshToken)
	assert.ErrorIs(t, err, serviceerr.ErrConnectionUnavailable)
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()

	var e *serviceerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, want, e.Description)
}
