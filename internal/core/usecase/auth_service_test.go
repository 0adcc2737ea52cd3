package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type stubSessionRepo struct {
	findFn   func(ctx context.Context, tokenHash string) (domain.Session, error)
	upserted []domain.Session
}

func (s *stubSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	if s.findFn != nil {
		return s.findFn(ctx, tokenHash)
	}
	for _, session := range s.upserted {
		if session.TokenHash == tokenHash {
			return session, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (s *stubSessionRepo) Upsert(_ context.Context, session domain.Session) error {
	s.upserted = append(s.upserted, session)
	return nil
}

type stubBearerVerifier struct {
	claims domain.BearerClaims
	err    error
}

func (s stubBearerVerifier) Verify(string) (domain.BearerClaims, error) {
	return s.claims, s.err
}

func TestSessionAuthenticatorAuthenticateSuccess(t *testing.T) {
	repo := &stubSessionRepo{findFn: func(_ context.Context, tokenHash string) (domain.Session, error) {
		if tokenHash != HashToken("token-1") {
			t.Fatalf("unexpected token hash: %s", tokenHash)
		}
		return domain.Session{TenantID: "tenant-a", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}

	svc := NewSessionAuthenticator(repo)
	session, err := svc.Authenticate(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if session.TenantID != "tenant-a" {
		t.Fatalf("expected tenant-a, got %s", session.TenantID)
	}
}

func TestSessionAuthenticatorRejectsExpiredAndRevoked(t *testing.T) {
	for name, session := range map[string]domain.Session{
		"expired": {TenantID: "t1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute)},
		"revoked": {TenantID: "t1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour), Revoked: true},
	} {
		t.Run(name, func(t *testing.T) {
			repo := &stubSessionRepo{findFn: func(context.Context, string) (domain.Session, error) { return session, nil }}
			_, err := NewSessionAuthenticator(repo).Authenticate(context.Background(), "token")
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}

func TestSessionAuthenticatorIssueStoresOnlyHash(t *testing.T) {
	repo := &stubSessionRepo{}
	svc := NewSessionAuthenticator(repo)

	token, session, err := svc.Issue(context.Background(), "t1", "u1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.TokenHash == token || session.TokenHash != HashToken(token) {
		t.Fatalf("session must store the token hash only")
	}
	got, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate issued token: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestAuthenticatorReturnsTaggedResults(t *testing.T) {
	sessions := NewSessionAuthenticator(&stubSessionRepo{})
	token, _, err := sessions.Issue(context.Background(), "t1", "u2", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	auth := NewAuthenticator(stubBearerVerifier{claims: domain.BearerClaims{UserID: "u1", TenantID: "t1", Role: domain.RoleAdmin}}, sessions)

	res, err := auth.Authenticate(context.Background(), domain.Handshake{BearerToken: "jwt"})
	if err != nil {
		t.Fatalf("bearer: %v", err)
	}
	if _, ok := res.(BearerResult); !ok {
		t.Fatalf("expected bearer result, got %T", res)
	}
	if id := res.Identity(); id.UserID != "u1" || id.TenantID != "t1" || id.Role != domain.RoleAdmin {
		t.Fatalf("unexpected identity: %+v", id)
	}

	res, err = auth.Authenticate(context.Background(), domain.Handshake{SessionToken: token})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, ok := res.(SessionResult); !ok {
		t.Fatalf("expected session result, got %T", res)
	}
	if id := res.Identity(); id.UserID != "u2" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestAuthenticatorRejectsMissingAmbiguousAndInvalid(t *testing.T) {
	auth := NewAuthenticator(stubBearerVerifier{err: errors.New("bad signature")}, NewSessionAuthenticator(&stubSessionRepo{}))

	for name, h := range map[string]domain.Handshake{
		"missing":   {},
		"both":      {BearerToken: "jwt", SessionToken: "session"},
		"bad token": {BearerToken: "jwt"},
		"unknown":   {SessionToken: "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), h)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
		})
	}
}
