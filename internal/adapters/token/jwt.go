// Package token issues and verifies short-lived HS256 bearer tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

const minSecretLen = 32

type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

func (c Config) validate() error {
	if len(c.Secret) < minSecretLen {
		return fmt.Errorf("bearer secret must be at least %d bytes", minSecretLen)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("bearer issuer is required")
	}
	return nil
}

// bearerClaims is the wire shape {userId, tenantId, role, exp}. The standard
// sub claim is accepted in place of userId.
type bearerClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId,omitempty"`
	TenantID string `json:"tenantId"`
	Role     string `json:"role,omitempty"`
}

func (c bearerClaims) user() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Verifier checks bearer tokens locally; no network call is made.
type Verifier struct {
	cfg Config
}

var _ ports.BearerVerifier = (*Verifier)(nil)

func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

func (v *Verifier) Verify(raw string) (domain.BearerClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.BearerClaims{}, domain.NewError(domain.CodeUnauthorized, "bearer token is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var parsed bearerClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return domain.BearerClaims{}, mapJWTError(err)
	}
	if parsed.Subject != "" && parsed.UserID != "" && parsed.Subject != parsed.UserID {
		return domain.BearerClaims{}, domain.NewError(domain.CodeUnauthorized, "bearer token subject and userId disagree")
	}
	if parsed.user() == "" || parsed.TenantID == "" {
		return domain.BearerClaims{}, domain.NewError(domain.CodeUnauthorized, "bearer token lacks user or tenant")
	}

	claims := domain.BearerClaims{
		UserID:    parsed.user(),
		TenantID:  parsed.TenantID,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.Role != "" {
		role, err := domain.ParseRole(parsed.Role)
		if err != nil {
			return domain.BearerClaims{}, domain.WrapError(domain.CodeUnauthorized, "bearer token role", err)
		}
		claims.Role = role
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.WrapError(domain.CodeUnauthorized, "bearer token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.WrapError(domain.CodeUnauthorized, "bearer token signature invalid", err)
	default:
		return domain.WrapError(domain.CodeUnauthorized, "bearer token invalid", err)
	}
}

// Signer issues bearer tokens. Interactive login is handled elsewhere; this
// exists for ops tooling and tests.
type Signer struct {
	cfg Config
}

func NewSigner(cfg Config) (*Signer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Signer{cfg: cfg}, nil
}

func (s *Signer) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if err := domain.ValidateID(identity.TenantID); err != nil {
		return "", err
	}
	if err := domain.ValidateID(identity.UserID); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("bearer ttl must be positive")
	}

	now := s.cfg.Now().UTC()
	claims := bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   identity.UserID,
		TenantID: identity.TenantID,
		Role:     string(identity.Role),
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return signed, nil
}
