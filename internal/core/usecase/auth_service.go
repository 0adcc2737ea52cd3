package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// SessionAuthenticator resolves opaque web-session tokens. Only hashes are stored.
type SessionAuthenticator struct {
	repo ports.SessionRepository
	now  func() time.Time
}

func NewSessionAuthenticator(repo ports.SessionRepository) *SessionAuthenticator {
	return &SessionAuthenticator{repo: repo, now: time.Now}
}

func (s *SessionAuthenticator) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}

	session, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, domain.ErrUnauthorized
		}
		return domain.Session{}, err
	}
	if session.Revoked || !s.now().Before(session.ExpiresAt) {
		return domain.Session{}, domain.ErrUnauthorized
	}
	return session, nil
}

// Issue stores a new session and returns its raw token. Used by ops tooling
// and tests; interactive login lives outside this module.
func (s *SessionAuthenticator) Issue(ctx context.Context, tenantID, userID string, ttl time.Duration) (string, domain.Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.Session{}, fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)
	now := s.now().UTC()
	session := domain.Session{
		TokenHash: HashToken(token),
		TenantID:  tenantID,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.Upsert(ctx, session); err != nil {
		return "", domain.Session{}, err
	}
	return token, session, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// AuthResult is the tagged outcome of authentication: BearerResult or SessionResult.
type AuthResult interface {
	Identity() domain.Identity
	isAuthResult()
}

type BearerResult struct {
	Claims domain.BearerClaims
}

func (r BearerResult) Identity() domain.Identity {
	return domain.Identity{UserID: r.Claims.UserID, TenantID: r.Claims.TenantID, Role: r.Claims.Role}
}

func (BearerResult) isAuthResult() {}

type SessionResult struct {
	Session domain.Session
}

func (r SessionResult) Identity() domain.Identity {
	return domain.Identity{UserID: r.Session.UserID, TenantID: r.Session.TenantID}
}

func (SessionResult) isAuthResult() {}

// Authenticator is the one authentication funnel shared by the web service
// and the gateway. Exactly one credential form must be presented.
type Authenticator struct {
	bearer   ports.BearerVerifier
	sessions *SessionAuthenticator
}

func NewAuthenticator(bearer ports.BearerVerifier, sessions *SessionAuthenticator) *Authenticator {
	return &Authenticator{bearer: bearer, sessions: sessions}
}

func (a *Authenticator) Authenticate(ctx context.Context, h domain.Handshake) (AuthResult, error) {
	bearer := strings.TrimSpace(h.BearerToken)
	session := strings.TrimSpace(h.SessionToken)

	switch {
	case bearer != "" && session != "":
		return nil, domain.NewError(domain.CodeUnauthorized, "ambiguous credentials")
	case bearer != "":
		if a.bearer == nil {
			return nil, domain.ErrUnauthorized
		}
		claims, err := a.bearer.Verify(bearer)
		if err != nil {
			return nil, domain.WrapError(domain.CodeUnauthorized, "invalid bearer token", err)
		}
		if claims.TenantID == "" || claims.UserID == "" {
			return nil, domain.NewError(domain.CodeUnauthorized, "bearer token lacks identity")
		}
		return BearerResult{Claims: claims}, nil
	case session != "":
		if a.sessions == nil {
			return nil, domain.ErrUnauthorized
		}
		s, err := a.sessions.Authenticate(ctx, session)
		if err != nil {
			if _, coded := domain.CodeOf(err); coded {
				return nil, err
			}
			return nil, fmt.Errorf("authenticate session: %w", err)
		}
		return SessionResult{Session: s}, nil
	default:
		return nil, domain.NewError(domain.CodeUnauthorized, "missing credentials")
	}
}
