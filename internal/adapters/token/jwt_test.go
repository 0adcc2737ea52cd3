package token

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

var secret = []byte(strings.Repeat("s", 32))

func fixedConfig(now time.Time) Config {
	return Config{Secret: secret, Issuer: "tenantsync", Audience: "gateway", Now: func() time.Time { return now }}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewSigner(fixedConfig(now))
	require.NoError(t, err)
	verifier, err := NewVerifier(fixedConfig(now.Add(time.Minute)))
	require.NoError(t, err)

	raw, err := signer.Issue(domain.Identity{UserID: "u1", TenantID: "t1", Role: domain.RoleManager}, 15*time.Minute)
	require.NoError(t, err)

	claims, err := verifier.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, domain.RoleManager, claims.Role)
	assert.Equal(t, now.Add(15*time.Minute), claims.ExpiresAt)
}

func TestVerifyRejectsExpiredForeignAndTampered(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewSigner(fixedConfig(now))
	require.NoError(t, err)
	raw, err := signer.Issue(domain.Identity{UserID: "u1", TenantID: "t1"}, time.Minute)
	require.NoError(t, err)

	late, err := NewVerifier(fixedConfig(now.Add(time.Hour)))
	require.NoError(t, err)
	_, err = late.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	otherCfg := fixedConfig(now)
	otherCfg.Secret = []byte(strings.Repeat("x", 32))
	other, err := NewVerifier(otherCfg)
	require.NoError(t, err)
	_, err = other.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	wrongAudience := fixedConfig(now)
	wrongAudience.Audience = "web"
	aud, err := NewVerifier(wrongAudience)
	require.NoError(t, err)
	_, err = aud.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	ok, err := NewVerifier(fixedConfig(now))
	require.NoError(t, err)
	_, err = ok.Verify(raw + "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = ok.Verify("")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return raw
}

func TestVerifyAcceptsDocumentedClaimShape(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg := fixedConfig(now)
	cfg.Audience = ""
	verifier, err := NewVerifier(cfg)
	require.NoError(t, err)

	raw := sign(t, jwt.MapClaims{
		"iss":      "tenantsync",
		"userId":   "u1",
		"tenantId": "t1",
		"role":     "ADMIN",
		"exp":      now.Add(time.Minute).Unix(),
	})
	claims, err := verifier.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.BearerClaims{UserID: "u1", TenantID: "t1", Role: domain.RoleAdmin, ExpiresAt: now.Add(time.Minute)}, claims)

	// sub stands in for userId when only the registered claim is present.
	claims, err = verifier.Verify(sign(t, jwt.MapClaims{
		"iss": "tenantsync", "sub": "u2", "tenantId": "t1", "exp": now.Add(time.Minute).Unix(),
	}))
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.UserID)

	for name, c := range map[string]jwt.MapClaims{
		"no user":      {"iss": "tenantsync", "tenantId": "t1", "exp": now.Add(time.Minute).Unix()},
		"no tenant":    {"iss": "tenantsync", "userId": "u1", "exp": now.Add(time.Minute).Unix()},
		"conflicting":  {"iss": "tenantsync", "sub": "u1", "userId": "u2", "tenantId": "t1", "exp": now.Add(time.Minute).Unix()},
		"no expiry":    {"iss": "tenantsync", "userId": "u1", "tenantId": "t1"},
		"unknown role": {"iss": "tenantsync", "userId": "u1", "tenantId": "t1", "role": "ROOT", "exp": now.Add(time.Minute).Unix()},
		"other issuer": {"iss": "elsewhere", "userId": "u1", "tenantId": "t1", "exp": now.Add(time.Minute).Unix()},
		"snake tenant": {"iss": "tenantsync", "userId": "u1", "tenant_id": "t1", "exp": now.Add(time.Minute).Unix()},
	} {
		_, err := verifier.Verify(sign(t, c))
		assert.ErrorIs(t, err, domain.ErrUnauthorized, name)
	}
}

func TestIssueEmitsDocumentedClaimNames(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	signer, err := NewSigner(fixedConfig(now))
	require.NoError(t, err)
	raw, err := signer.Issue(domain.Identity{UserID: "u1", TenantID: "t1", Role: domain.RoleWorker}, time.Minute)
	require.NoError(t, err)

	var claims map[string]any
	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "u1", claims["userId"])
	assert.Equal(t, "t1", claims["tenantId"])
	assert.Equal(t, "WORKER", claims["role"])
	assert.Contains(t, claims, "exp")
}

func TestConfigRequiresStrongSecret(t *testing.T) {
	_, err := NewVerifier(Config{Secret: []byte("short"), Issuer: "tenantsync"})
	assert.Error(t, err)
	_, err = NewSigner(Config{Secret: secret})
	assert.Error(t, err)
}
