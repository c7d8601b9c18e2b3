// Package serviceerr defines the error taxonomy shared by the session core.
// Every error crossing a component boundary is an *Error carrying a stable Code.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	// Token codec
	CodeTokenMalformed        Code = "token_malformed"
	CodeTokenExpired          Code = "token_expired"
	CodeTokenInvalidSignature Code = "token_invalid_signature"
	CodeConfigError           Code = "config_error"

	// Refresh coordinator
	CodeRefreshNetworkError Code = "refresh_network_error"
	CodeRefreshTimeout      Code = "refresh_timeout"
	CodeRefreshRevoked      Code = "refresh_revoked"

	// Connection manager
	CodeConnectionUnavailable Code = "connection_unavailable"

	// Request interceptor
	CodeAuthExpired Code = "auth_expired"

	// HTTP surface
	CodeInvalidRequest Code = "invalid_request"
	CodeNotFound       Code = "not_found"
	CodeServerError    Code = "server_error"
)

type Error struct {
	Err         Code
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so that wrapped instances with a
// different description or cause still compare equal to the predefined errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Err == e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeTokenMalformed:
		return http.StatusBadRequest
	case CodeTokenExpired, CodeTokenInvalidSignature, CodeRefreshRevoked, CodeAuthExpired:
		return http.StatusUnauthorized
	case CodeConnectionUnavailable, CodeRefreshNetworkError:
		return http.StatusServiceUnavailable
	case CodeRefreshTimeout:
		return http.StatusGatewayTimeout
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may re-attempt the whole operation.
func (e *Error) Retryable() bool {
	switch e.Err {
	case CodeRefreshNetworkError, CodeRefreshTimeout, CodeConnectionUnavailable:
		return true
	default:
		return false
	}
}

// Wrap returns a copy of e with the given cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Err: e.Err, Description: e.Description, Cause: cause}
}

// WithDescription returns a copy of e with a more specific description.
func (e *Error) WithDescription(description string) *Error {
	return &Error{Err: e.Err, Description: description, Cause: e.Cause}
}

// CodeOf extracts the code of the first *Error in the chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}

	return e.Err, true
}

var (
	ErrTokenMalformed        = &Error{Err: CodeTokenMalformed, Description: "token is malformed"}
	ErrTokenExpired          = &Error{Err: CodeTokenExpired, Description: "token has expired"}
	ErrTokenInvalidSignature = &Error{Err: CodeTokenInvalidSignature, Description: "token signature is invalid"}
	ErrConfig                = &Error{Err: CodeConfigError, Description: "invalid configuration"}

	ErrRefreshNetwork = &Error{Err: CodeRefreshNetworkError, Description: "refresh endpoint unreachable"}
	ErrRefreshTimeout = &Error{Err: CodeRefreshTimeout, Description: "refresh call timed out"}
	ErrRefreshRevoked = &Error{Err: CodeRefreshRevoked, Description: "refresh token revoked"}

	ErrConnectionUnavailable = &Error{Err: CodeConnectionUnavailable, Description: "database connection unavailable"}

	ErrAuthExpired = &Error{Err: CodeAuthExpired, Description: "authentication expired"}

	ErrInvalidRequest = &Error{Err: CodeInvalidRequest}
	ErrNotFound       = &Error{Err: CodeNotFound, Description: "not found"}
	ErrServerError    = &Error{Err: CodeServerError, Description: "internal error"}
)
