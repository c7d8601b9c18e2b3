// Package token issues and verifies the signed bearer tokens used by the session core.
//
// Tokens are compact HS256 JWS values. The codec is a pure transform over the
// configured secret: it performs no I/O and keeps no state besides its options.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims are the verified contents of a token.
type Claims struct {
	ID        string
	Subject   string
	Type      Type
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type customClaims struct {
	Type Type `json:"token_type"`
}

var signatureAlgs = []jose.SignatureAlgorithm{jose.HS256}

type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	newID  func() string
}

type Option func(*Codec)

func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock replaces the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIDSource replaces the generator of token ids.
func WithIDSource(newID func() string) Option {
	return func(c *Codec) { c.newID = newID }
}

func WithLeeway(leeway time.Duration) Option {
	return func(c *Codec) { c.leeway = leeway }
}

func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Issue returns an access token for the subject valid for ttl.
func (c *Codec) Issue(subject string, ttl time.Duration) (string, error) {
	return c.IssueType(subject, TypeAccess, ttl)
}

// IssueType returns a token of the given type for the subject valid for ttl.
func (c *Codec) IssueType(subject string, typ Type, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", serviceerr.ErrConfig.WithDescription("JWT secret is not configured")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: c.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := c.now()
	std := jwt.Claims{
		ID:       c.newID(),
		Issuer:   c.issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}

	raw, err := jwt.Signed(signer).Claims(std).Claims(customClaims{Type: typ}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialising token: %w", err)
	}

	return raw, nil
}

// Verify checks the signature first and the expiry second, returning the
// most specific failure: ErrTokenMalformed, ErrTokenInvalidSignature or ErrTokenExpired.
func (c *Codec) Verify(raw string) (Claims, error) {
	if len(c.secret) == 0 {
		return Claims{}, serviceerr.ErrConfig.WithDescription("JWT secret is not configured")
	}

	tok, err := jwt.ParseSigned(raw, signatureAlgs)
	if err != nil {
		return Claims{}, serviceerr.ErrTokenMalformed.Wrap(err)
	}

	var (
		std    jwt.Claims
		custom customClaims
	)
	if err := tok.Claims(c.secret, &std, &custom); err != nil {
		if errors.Is(err, jose.ErrCryptoFailure) {
			return Claims{}, serviceerr.ErrTokenInvalidSignature.Wrap(err)
		}

		return Claims{}, serviceerr.ErrTokenMalformed.Wrap(err)
	}

	if std.Expiry == nil || custom.Type == "" {
		return Claims{}, serviceerr.ErrTokenMalformed.WithDescription("missing required claims")
	}

	expected := jwt.Expected{Time: c.now()}
	if c.issuer != "" {
		expected.Issuer = c.issuer
	}
	if err := std.ValidateWithLeeway(expected, c.leeway); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, serviceerr.ErrTokenExpired.Wrap(err)
		}

		return Claims{}, serviceerr.ErrTokenMalformed.Wrap(err)
	}

	claims := Claims{
		ID:        std.ID,
		Subject:   std.Subject,
		Type:      custom.Type,
		ExpiresAt: std.Expiry.Time(),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}

	return claims, nil
}

// VerifyType is Verify plus a check that the token is of the expected type.
func (c *Codec) VerifyType(raw string, typ Type) (Claims, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return Claims{}, err
	}

	if claims.Type != typ {
		return Claims{}, serviceerr.ErrTokenMalformed.WithDescription(
			fmt.Sprintf("expected %s token, got %s", typ, claims.Type))
	}

	return claims, nil
}
