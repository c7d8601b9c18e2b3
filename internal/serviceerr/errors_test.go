package serviceerr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name        string
		err         *serviceerr.Error
		expectedMsg string
	}{
		{
			name:        "Error with description",
			err:         &serviceerr.Error{Err: serviceerr.CodeTokenExpired, Description: "token has expired"},
			expectedMsg: "token_expired: token has expired",
		},
		{
			name:        "Error without description",
			err:         &serviceerr.Error{Err: serviceerr.CodeInvalidRequest, Description: ""},
			expectedMsg: "invalid_request",
		},
		{
			name:        "Predefined error - ErrConnectionUnavailable",
			err:         serviceerr.ErrConnectionUnavailable,
			expectedMsg: "connection_unavailable: database connection unavailable",
		},
		{
			name:        "Predefined error - ErrAuthExpired",
			err:         serviceerr.ErrAuthExpired,
			expectedMsg: "auth_expired: authentication expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := fmt.Errorf("getting engine: %w", serviceerr.ErrConnectionUnavailable.Wrap(cause))

	assert.ErrorIs(t, wrapped, serviceerr.ErrConnectionUnavailable)
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, serviceerr.ErrAuthExpired)

	described := serviceerr.ErrRefreshRevoked.WithDescription("refresh_expired")
	assert.ErrorIs(t, described, serviceerr.ErrRefreshRevoked)
	assert.Equal(t, "refresh_revoked: refresh_expired", described.Error())
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		name               string
		code               serviceerr.Code
		expectedHTTPStatus int
	}{
		{name: "invalid request", code: serviceerr.CodeInvalidRequest, expectedHTTPStatus: http.StatusBadRequest},
		{name: "malformed token", code: serviceerr.CodeTokenMalformed, expectedHTTPStatus: http.StatusBadRequest},
		{name: "expired token", code: serviceerr.CodeTokenExpired, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "invalid signature", code: serviceerr.CodeTokenInvalidSignature, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "revoked", code: serviceerr.CodeRefreshRevoked, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "auth expired", code: serviceerr.CodeAuthExpired, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "connection unavailable", code: serviceerr.CodeConnectionUnavailable, expectedHTTPStatus: http.StatusServiceUnavailable},
		{name: "refresh timeout", code: serviceerr.CodeRefreshTimeout, expectedHTTPStatus: http.StatusGatewayTimeout},
		{name: "not found", code: serviceerr.CodeNotFound, expectedHTTPStatus: http.StatusNotFound},
		{name: "config error", code: serviceerr.CodeConfigError, expectedHTTPStatus: http.StatusInternalServerError},
		{name: "unknown code", code: serviceerr.Code("unknown_code"), expectedHTTPStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := serviceerr.Error{Err: tt.code}
			assert.Equal(t, tt.expectedHTTPStatus, err.HTTPStatus())
		})
	}
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, serviceerr.ErrRefreshNetwork.Retryable())
	assert.True(t, serviceerr.ErrRefreshTimeout.Retryable())
	assert.True(t, serviceerr.ErrConnectionUnavailable.Retryable())
	assert.False(t, serviceerr.ErrRefreshRevoked.Retryable())
	assert.False(t, serviceerr.ErrAuthExpired.Retryable())
}

func TestCodeOf(t *testing.T) {
	code, ok := serviceerr.CodeOf(fmt.Errorf("outer: %w", serviceerr.ErrTokenExpired))
	assert.True(t, ok)
	assert.Equal(t, serviceerr.CodeTokenExpired, code)

	_, ok = serviceerr.CodeOf(errors.New("plain"))
	assert.False(t, ok)
}
