package grant

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/middleware/bearer"
	"github.com/openkcm/session-keeper/internal/serviceerr"
)

const maxBodyBytes = 64 << 10

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type sessionResponse struct {
	Subject   string    `json:"subject"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Handler exposes the Service over HTTP.
type Handler struct {
	grants *Service
}

func NewHandler(grants *Service) *Handler {
	return &Handler{grants: grants}
}

// Refresh serves POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRefreshRequest(w, r)
	if !ok {
		return
	}

	tokens, err := h.grants.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(tokens.ExpiresIn / time.Second),
	})
}

// Logout serves POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRefreshRequest(w, r)
	if !ok {
		return
	}

	if err := h.grants.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session serves GET /v1/session behind the bearer middleware.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims, err := bearer.ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, r, serviceerr.ErrServerError.Wrap(err))
		return
	}

	writeJSON(w, r, http.StatusOK, sessionResponse{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	})
}

func decodeRefreshRequest(w http.ResponseWriter, r *http.Request) (refreshRequest, bool) {
	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, serviceerr.ErrInvalidRequest.WithDescription("body must be a JSON object").Wrap(err))
		return req, false
	}
	if req.RefreshToken == "" {
		writeError(w, r, serviceerr.ErrInvalidRequest.WithDescription("refresh_token is required"))
		return req, false
	}

	return req, true
}

// writeError renders err as {error, error_description}. Any token failure on
// the refresh endpoint is a 401 invalid_grant; a revoked or expired refresh
// token carries its specific code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *serviceerr.Error
	if !errors.As(err, &e) {
		e = serviceerr.ErrServerError.Wrap(err)
	}

	status := e.HTTPStatus()
	body := errorResponse{Error: string(e.Err), ErrorDescription: e.Description}

	switch e.Err {
	case serviceerr.CodeRefreshRevoked:
		body = errorResponse{Error: ErrorRefreshRevoked}
		if e.Description == ErrorRefreshExpired {
			body.Error = ErrorRefreshExpired
		}
	case serviceerr.CodeTokenMalformed, serviceerr.CodeTokenExpired, serviceerr.CodeTokenInvalidSignature:
		status = http.StatusUnauthorized
		body = errorResponse{Error: ErrorInvalidGrant, ErrorDescription: e.Description}
	case serviceerr.CodeServerError, serviceerr.CodeConfigError:
		body.ErrorDescription = ""
	}

	if status >= http.StatusInternalServerError {
		slogctx.Error(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	} else {
		slogctx.Info(r.Context(), "Request rejected", "path", r.URL.Path, "error", err)
	}

	writeJSON(w, r, status, body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.Error(r.Context(), "Failed to write response", "error", err)
	}
}
