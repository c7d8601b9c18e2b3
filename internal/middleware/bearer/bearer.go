// Package bearer provides an http.Handler middleware that authenticates
// requests by their bearer token and injects the verified claims in the context.
package bearer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/internal/token"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// ClaimsKey is the context key for the verified claims.
const ClaimsKey contextKey = "claims"

// Authenticator verifies an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (token.Claims, error)
}

// Middleware rejects requests without a valid access token with 401.
func Middleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tokenFromHeader(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "invalid_request", string(serviceerr.CodeInvalidRequest))
				return
			}

			claims, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				code := string(serviceerr.CodeTokenMalformed)
				if c, ok := serviceerr.CodeOf(err); ok {
					code = string(c)
				}
				unauthorized(w, "invalid_token", code)

				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the claims injected by Middleware.
func ClaimsFromContext(ctx context.Context) (token.Claims, error) {
	claims, ok := ctx.Value(ClaimsKey).(token.Claims)
	if !ok {
		return token.Claims{}, errors.New("claims not found in context")
	}
	return claims, nil
}

func tokenFromHeader(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	raw = strings.TrimSpace(raw)

	return raw, raw != ""
}

func unauthorized(w http.ResponseWriter, challenge, code string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+challenge+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
