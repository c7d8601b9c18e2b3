// Package interceptor attaches the session's bearer token to outbound calls
// and transparently refreshes it once when a call is rejected with 401.
package interceptor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/refresh"
	"github.com/openkcm/session-keeper/internal/serviceerr"
)

// TokenRefresher is satisfied by *refresh.Coordinator.
type TokenRefresher interface {
	Refresh(ctx context.Context, presented string) (refresh.Result, error)
}

// requestState tracks one outbound request. At most one transition into
// stateRetried happens per request.
type requestState int

const (
	stateSent requestState = iota
	stateWaitingRefresh
	stateRetried
	stateSucceeded
	stateFailed
)

func (s requestState) String() string {
	switch s {
	case stateSent:
		return "sent"
	case stateWaitingRefresh:
		return "waiting_refresh"
	case stateRetried:
		return "retried"
	case stateSucceeded:
		return "succeeded"
	default:
		return "failed"
	}
}

type Transport struct {
	next      http.RoundTripper
	sessions  *SessionStore
	refresher TokenRefresher
	refresh   *url.URL
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps next. refreshEndpoint identifies the refresh endpoint,
// whose own 401 responses end the session instead of triggering a refresh.
func NewTransport(next http.RoundTripper, sessions *SessionStore, refresher TokenRefresher, refreshEndpoint string) (*Transport, error) {
	if next == nil {
		next = http.DefaultTransport
	}

	t := &Transport{
		next:      next,
		sessions:  sessions,
		refresher: refresher,
	}

	if refreshEndpoint != "" {
		u, err := url.Parse(refreshEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing refresh endpoint: %w", err)
		}
		t.refresh = u
	}

	return t, nil
}

// NewClient returns an http.Client whose calls go through a Transport.
func NewClient(next http.RoundTripper, sessions *SessionStore, refresher TokenRefresher, refreshEndpoint string) (*http.Client, error) {
	t, err := NewTransport(next, sessions, refresher, refreshEndpoint)
	if err != nil {
		return nil, err
	}

	return &http.Client{Transport: t}, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	req = req.Clone(ctx)
	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	var (
		state = stateSent
		sent  = t.sessions.Load().AccessToken
		token string
	)

	resp, err := t.send(req, sent)
	for {
		switch state {
		case stateSent:
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
			drain(resp)

			if t.isRefreshEndpoint(req.URL) {
				slogctx.Warn(ctx, "Refresh endpoint rejected the session", "url", req.URL.Redacted())
				return t.fail(ctx, state, serviceerr.ErrAuthExpired.Wrap(serviceerr.ErrRefreshRevoked))
			}

			state = stateWaitingRefresh

		case stateWaitingRefresh:
			token, err = t.renew(ctx, sent)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return t.fail(ctx, state, serviceerr.ErrAuthExpired.Wrap(err))
			}

			resp, err = t.send(req, token)
			state = stateRetried

		case stateRetried:
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusUnauthorized {
				drain(resp)
				return t.fail(ctx, state, serviceerr.ErrAuthExpired.WithDescription("request rejected after token refresh"))
			}

			slogctx.Debug(ctx, "Request succeeded after token refresh", "from", state.String(), "to", stateSucceeded.String())
			return resp, nil
		}
	}
}

// renew returns a token to retry with. When the session already moved past
// the token that was rejected, the current one is used without refreshing.
func (t *Transport) renew(ctx context.Context, sent string) (string, error) {
	current := t.sessions.Load()
	if current.AccessToken != "" && current.AccessToken != sent {
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		return "", errors.New("no refresh token in session")
	}

	result, err := t.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return "", err
	}

	return result.AccessToken, nil
}

func (t *Transport) fail(ctx context.Context, from requestState, err error) (*http.Response, error) {
	slogctx.Info(ctx, "Authentication expired", "from", from.String(), "to", stateFailed.String(), "error", err)
	t.sessions.Clear(ctx)

	return nil, err
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = body
	}

	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	return t.next.RoundTrip(out)
}

func (t *Transport) isRefreshEndpoint(u *url.URL) bool {
	if t.refresh == nil {
		return false
	}

	return strings.EqualFold(u.Scheme, t.refresh.Scheme) &&
		strings.EqualFold(u.Hostname(), t.refresh.Hostname()) &&
		effectivePort(u) == effectivePort(t.refresh) &&
		u.Path == t.refresh.Path
}

// effectivePort returns the URL's port, falling back to the scheme default.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}

	return ""
}

// ensureReplayable buffers a request body that cannot be re-read, so the
// request can be resent after a refresh.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffering request body: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body, _ = req.GetBody()

	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
