package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/config"
	"github.com/openkcm/session-keeper/internal/interceptor"
	"github.com/openkcm/session-keeper/internal/refresh"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/pkg/session"
)

// CallOptions describe one authenticated call made through the interceptor.
type CallOptions struct {
	URL        string
	RefreshURL string

	// SessionID names a persisted session. Tokens given explicitly take
	// precedence over the persisted ones.
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// CallMain performs a GET through the refreshing client and copies the
// response body to out. A refreshed session is written back to storage.
func CallMain(ctx context.Context, cfg *config.Config, opts CallOptions, out io.Writer) error {
	a, err := initApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the application: %w", err)
	}
	defer a.Close()

	initial, err := a.initialSession(ctx, opts)
	if err != nil {
		return err
	}

	refreshURL := opts.RefreshURL
	if refreshURL == "" {
		refreshURL = cfg.Auth.RefreshURL
	}

	client, err := newSessionClient(cfg, a.sessions, initial, refreshURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return oops.In("call").Wrapf(err, "creating request")
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, serviceerr.ErrAuthExpired) {
			return oops.In("call").With("url", opts.URL).Wrapf(err, "session ended, log in again")
		}
		return oops.In("call").With("url", opts.URL).Wrapf(err, "calling")
	}
	defer resp.Body.Close()

	slogctx.Info(ctx, "Call completed", "url", opts.URL, "status", resp.StatusCode)

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return oops.In("call").With("status", resp.StatusCode).Errorf("request failed with status %d", resp.StatusCode)
	}

	return nil
}

func (a *app) initialSession(ctx context.Context, opts CallOptions) (session.Session, error) {
	s := session.Session{ID: opts.SessionID}

	if opts.SessionID != "" {
		stored, err := a.sessions.LoadSession(ctx, opts.SessionID)
		switch {
		case err == nil:
			s = stored
		case errors.Is(err, serviceerr.ErrNotFound):
		default:
			return session.Session{}, fmt.Errorf("loading session %s: %w", opts.SessionID, err)
		}
	}

	if opts.AccessToken != "" {
		s.AccessToken = opts.AccessToken
	}
	if opts.RefreshToken != "" {
		s.RefreshToken = opts.RefreshToken
	}

	if s.Empty() {
		return session.Session{}, serviceerr.ErrInvalidRequest.WithDescription("no session: pass tokens or the id of a stored session")
	}

	return s, nil
}

// newSessionClient wires a session store, a refresh coordinator and the
// interceptor into an http.Client. The session is persisted to repo when set.
func newSessionClient(cfg *config.Config, repo session.Repository, initial session.Session, refreshURL string) (*http.Client, error) {
	var opts []interceptor.SessionOption
	if repo != nil && initial.ID != "" {
		opts = append(opts, interceptor.WithRepository(repo))
	}
	store := interceptor.NewSessionStore(initial, opts...)
	store.OnCleared(func(ctx context.Context, s session.Session) {
		slogctx.Warn(ctx, "Session cleared, re-authentication required", "session_id", s.ID, "subject", s.Subject)
	})

	coordinator := refresh.NewCoordinator(
		refresh.NewHTTPRefresher(refreshURL, nil),
		refresh.WithTimeout(cfg.Auth.RefreshTimeout),
		refresh.WithMaxRetries(cfg.Auth.RefreshMaxRetries),
		refresh.WithOnRefreshed(store.ApplyRefresh),
		refresh.WithOnFailed(func(ctx context.Context, _ error) { store.Clear(ctx) }),
	)

	client, err := interceptor.NewClient(nil, store, coordinator, refreshURL)
	if err != nil {
		return nil, fmt.Errorf("creating session client: %w", err)
	}

	return client, nil
}

// IssueMain mints a token pair for subject and writes it to out as JSON.
func IssueMain(ctx context.Context, cfg *config.Config, subject string, out io.Writer) error {
	a, err := initApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the application: %w", err)
	}
	defer a.Close()

	tokens, err := a.grants.Login(ctx, subject)
	if err != nil {
		return fmt.Errorf("issuing tokens: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(tokens.ExpiresIn.Seconds()),
	})
}
