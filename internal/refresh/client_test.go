package refresh_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-keeper/internal/refresh"
	"github.com/openkcm/session-keeper/internal/serviceerr"
)

func TestHTTPRefresher_Refresh(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantResult refresh.Result
		wantErr    error
	}{
		{
			name:   "Success with rotation",
			status: http.StatusOK,
			body:   `{"access_token":"a2","refresh_token":"r2","expires_in":900}`,
			wantResult: refresh.Result{
				AccessToken:  "a2",
				RefreshToken: "r2",
				ExpiresIn:    900 * time.Second,
			},
		},
		{
			name:       "Success without rotation",
			status:     http.StatusOK,
			body:       `{"access_token":"a2","expires_in":60}`,
			wantResult: refresh.Result{AccessToken: "a2", ExpiresIn: time.Minute},
		},
		{name: "Revoked", status: http.StatusUnauthorized, body: `{"error":"refresh_revoked"}`, wantErr: serviceerr.ErrRefreshRevoked},
		{name: "Refresh token expired", status: http.StatusUnauthorized, body: `{"error":"refresh_expired"}`, wantErr: serviceerr.ErrRefreshRevoked},
		{name: "Invalid grant", status: http.StatusUnauthorized, body: `{"error":"invalid_grant"}`, wantErr: serviceerr.ErrRefreshRevoked},
		{name: "Unauthorized without body", status: http.StatusUnauthorized, wantErr: serviceerr.ErrRefreshRevoked},
		{name: "Server error", status: http.StatusBadGateway, body: "upstream down", wantErr: serviceerr.ErrRefreshNetwork},
		{name: "Undecodable success", status: http.StatusOK, body: "{", wantErr: serviceerr.ErrRefreshNetwork},
		{name: "Missing access token", status: http.StatusOK, body: `{"expires_in":60}`, wantErr: serviceerr.ErrRefreshNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := refresh.NewHTTPRefresher(srv.URL+"/auth/refresh", srv.Client())
			res, err := r.Refresh(context.Background(), "r1")

			assert.Equal(t, "r1", received["refresh_token"])
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, res)
		})
	}
}

func TestHTTPRefresher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := refresh.NewHTTPRefresher(url, nil)
	_, err := r.Refresh(context.Background(), "r1")

	assert.ErrorIs(t, err, serviceerr.ErrRefreshNetwork)
}
