package bearer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-keeper/internal/middleware/bearer"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/internal/token"
)

type authFunc func(ctx context.Context, raw string) (token.Claims, error)

func (f authFunc) Authenticate(ctx context.Context, raw string) (token.Claims, error) {
	return f(ctx, raw)
}

func TestMiddleware(t *testing.T) {
	auth := authFunc(func(_ context.Context, raw string) (token.Claims, error) {
		switch raw {
		case "good":
			return token.Claims{Subject: "alice", Type: token.TypeAccess}, nil
		case "expired":
			return token.Claims{}, serviceerr.ErrTokenExpired
		default:
			return token.Claims{}, serviceerr.ErrTokenInvalidSignature
		}
	})

	tests := []struct {
		name          string
		header        string
		wantStatus    int
		wantBody      string
		wantChallenge string
	}{
		{name: "Valid token", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "Scheme is case insensitive", header: "bearer good", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "Expired token", header: "Bearer expired", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"token_expired"}` + "\n", wantChallenge: `Bearer error="invalid_token"`},
		{name: "Forged token", header: "Bearer forged", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"token_invalid_signature"}` + "\n", wantChallenge: `Bearer error="invalid_token"`},
		{name: "Missing header", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid_request"}` + "\n", wantChallenge: `Bearer error="invalid_request"`},
		{name: "Wrong scheme", header: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid_request"}` + "\n", wantChallenge: `Bearer error="invalid_request"`},
		{name: "Empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid_request"}` + "\n", wantChallenge: `Bearer error="invalid_request"`},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := bearer.ClaimsFromContext(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(claims.Subject))
	})
	handler := bearer.Middleware(auth)(next)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantChallenge, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestClaimsFromContext_Missing(t *testing.T) {
	_, err := bearer.ClaimsFromContext(context.Background())
	assert.Error(t, err)
}
