// Package grant is the server side of the session: it mints token pairs,
// rotates them on refresh and revokes them on logout.
package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/internal/token"
	"github.com/openkcm/session-keeper/pkg/session"
)

// Error codes reported by the refresh endpoint in a 401 body.
const (
	ErrorRefreshRevoked = "refresh_revoked"
	ErrorRefreshExpired = "refresh_expired"
	ErrorInvalidGrant   = "invalid_grant"
)

// Tokens is a freshly minted token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type Service struct {
	codec       *token.Codec
	revocations session.RevocationList
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

// NewService fails with ErrConfig unless accessTTL is shorter than refreshTTL.
func NewService(codec *token.Codec, revocations session.RevocationList, accessTTL, refreshTTL time.Duration) (*Service, error) {
	if accessTTL <= 0 || accessTTL >= refreshTTL {
		return nil, serviceerr.ErrConfig.WithDescription(
			fmt.Sprintf("access token TTL (%s) must be positive and shorter than refresh token TTL (%s)", accessTTL, refreshTTL))
	}

	return &Service{
		codec:       codec,
		revocations: revocations,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
	}, nil
}

// Login issues a new token pair for the subject.
func (s *Service) Login(ctx context.Context, subject string) (Tokens, error) {
	if subject == "" {
		return Tokens{}, serviceerr.ErrInvalidRequest.WithDescription("subject is required")
	}

	tokens, err := s.issue(subject)
	if err != nil {
		return Tokens{}, err
	}

	slogctx.Info(ctx, "Issued session tokens", "subject", subject)

	return tokens, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the presented
// one. An expired refresh token is treated as revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	claims, err := s.codec.VerifyType(refreshToken, token.TypeRefresh)
	switch {
	case errors.Is(err, serviceerr.ErrTokenExpired):
		return Tokens{}, serviceerr.ErrRefreshRevoked.WithDescription(ErrorRefreshExpired).Wrap(err)
	case err != nil:
		return Tokens{}, err
	}

	// The presented token is consumed atomically, so concurrent replays of
	// one refresh token rotate at most once.
	consumed, err := s.revocations.RevokeIfAbsent(ctx, claims.ID, claims.ExpiresAt)
	if err != nil {
		return Tokens{}, coded(fmt.Errorf("revoking rotated token: %w", err))
	}
	if !consumed {
		slogctx.Warn(ctx, "Revoked refresh token presented", "subject", claims.Subject, "token_id", claims.ID)
		return Tokens{}, serviceerr.ErrRefreshRevoked.WithDescription(ErrorRefreshRevoked)
	}

	tokens, err := s.issue(claims.Subject)
	if err != nil {
		return Tokens{}, err
	}

	slogctx.Info(ctx, "Rotated session tokens", "subject", claims.Subject)

	return tokens, nil
}

// Logout revokes the refresh token. Tokens that are already expired need no
// revocation and are accepted silently.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.VerifyType(refreshToken, token.TypeRefresh)
	switch {
	case errors.Is(err, serviceerr.ErrTokenExpired):
		return nil
	case err != nil:
		return err
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return coded(fmt.Errorf("revoking token: %w", err))
	}

	slogctx.Info(ctx, "Session logged out", "subject", claims.Subject)

	return nil
}

// Authenticate verifies an access token presented on a protected call.
func (s *Service) Authenticate(_ context.Context, accessToken string) (token.Claims, error) {
	return s.codec.VerifyType(accessToken, token.TypeAccess)
}

func (s *Service) issue(subject string) (Tokens, error) {
	access, err := s.codec.IssueType(subject, token.TypeAccess, s.accessTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("issuing access token: %w", err)
	}

	refresh, err := s.codec.IssueType(subject, token.TypeRefresh, s.refreshTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("issuing refresh token: %w", err)
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.accessTTL,
	}, nil
}

// coded keeps a taxonomy error as is and reports anything else as a server error.
func coded(err error) error {
	if _, ok := serviceerr.CodeOf(err); ok {
		return err
	}

	return serviceerr.ErrServerError.Wrap(err)
}
