package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

// ErrorCodeRevoked is the machine readable code the refresh endpoint uses
// for a revoked session.
const ErrorCodeRevoked = "refresh_revoked"

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// HTTPRefresher calls POST <endpoint> with {refresh_token}.
type HTTPRefresher struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRefresher(endpoint string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPRefresher{
		endpoint: endpoint,
		client:   client,
	}
}

func (r *HTTPRefresher) Endpoint() string {
	return r.endpoint
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	body, err := json.Marshal(tokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return Result{}, fmt.Errorf("encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, serviceerr.ErrRefreshNetwork.Wrap(fmt.Errorf("executing refresh request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var tokens tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
			return Result{}, serviceerr.ErrRefreshNetwork.Wrap(fmt.Errorf("decoding refresh response: %w", err))
		}
		if tokens.AccessToken == "" {
			return Result{}, serviceerr.ErrRefreshNetwork.WithDescription("refresh response without access token")
		}

		return Result{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			ExpiresIn:    time.Duration(tokens.ExpiresIn) * time.Second,
		}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Every 401 from the refresh endpoint ends the session; an expired
		// refresh token is handled like a revoked one.
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		description := e.Error
		if description == "" {
			description = "refresh endpoint rejected the refresh token"
		}

		return Result{}, serviceerr.ErrRefreshRevoked.WithDescription(description)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return Result{}, serviceerr.ErrRefreshNetwork.WithDescription(
			fmt.Sprintf("refresh endpoint returned status %d", resp.StatusCode))
	}
}
