package permissions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

func expectedSig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestGrantSendsSignedPut(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "test-secret", 5*time.Second)
	err := c.Grant(context.Background(), ports.ExternalGrant{TenantID: "t1", Provider: "github", ExternalID: "octo/cat", Role: "maintain"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if gotPath != "/grants/github/octo%2Fcat" {
		t.Errorf("path = %q", gotPath)
	}
	if ten := gotHeaders.Get("X-Tenantsync-Tenant"); ten != "t1" {
		t.Errorf("tenant header = %q, want t1", ten)
	}
	if sig := gotHeaders.Get("X-Hub-Signature-256"); sig != expectedSig("test-secret", gotBody) {
		t.Errorf("signature mismatch: %q", sig)
	}

	var decoded grantBody
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.TenantID != "t1" || decoded.Role != "maintain" {
		t.Errorf("body = %+v", decoded)
	}
}

func TestRevokeTreatsNotFoundAsSuccess(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		gotSig = r.Header.Get("X-Hub-Signature-256")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s", 0)
	if err := c.Revoke(context.Background(), "github", "octocat"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if gotSig != expectedSig("s", []byte("DELETE /grants/github/octocat")) {
		t.Errorf("signature = %q", gotSig)
	}
}

func TestNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	err := c.Grant(context.Background(), ports.ExternalGrant{TenantID: "t1", Provider: "p", ExternalID: "x", Role: "r"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status 500 error, got %v", err)
	}
	if err := c.Revoke(context.Background(), "p", "x"); err == nil {
		t.Fatal("expected revoke error for 500")
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Revoke(ctx, "p", "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestZeroTimeoutUsesDefault(t *testing.T) {
	c := NewClient("http://localhost:9", "s", 0)
	if c.client.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.client.Timeout, defaultTimeout)
	}
}
