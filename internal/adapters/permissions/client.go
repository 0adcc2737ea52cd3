package permissions

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// Client drives the external permission service over HTTP.
// Each request is signed with HMAC-SHA256 so the receiver can verify authenticity.
type Client struct {
	baseURL string
	secret  []byte
	client  *http.Client
}

var _ ports.ExternalPermissions = (*Client)(nil)

// NewClient returns a Client rooted at baseURL. A zero or negative timeout
// falls back to defaultTimeout (10 s).
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		client:  &http.Client{Timeout: timeout},
	}
}

type grantBody struct {
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
}

// Grant upserts the permission of one external identity:
//
//	PUT /grants/{provider}/{externalId}
//	X-Tenantsync-Tenant:  <tenant>
//	X-Hub-Signature-256:  sha256=<hex-encoded HMAC-SHA256>
func (c *Client) Grant(ctx context.Context, grant ports.ExternalGrant) error {
	payload, err := json.Marshal(grantBody{TenantID: grant.TenantID, Role: grant.Role})
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}
	status, err := c.do(ctx, http.MethodPut, c.grantURL(grant.Provider, grant.ExternalID), grant.TenantID, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("grant returned status %d", status)
	}
	return nil
}

// Revoke removes every permission of the identity. A missing grant is success.
func (c *Client) Revoke(ctx context.Context, provider, externalID string) error {
	status, err := c.do(ctx, http.MethodDelete, c.grantURL(provider, externalID), "", nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("revoke returned status %d", status)
	}
	return nil
}

func (c *Client) grantURL(provider, externalID string) string {
	return c.baseURL + "/grants/" + url.PathEscape(provider) + "/" + url.PathEscape(externalID)
}

func (c *Client) do(ctx context.Context, method, target, tenantID string, payload []byte) (int, error) {
	if payload == nil {
		payload = []byte{}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set("X-Tenantsync-Tenant", tenantID)
	}
	// DELETE has no body, so the signature covers the method and path instead.
	signed := payload
	if len(signed) == 0 {
		signed = []byte(method + " " + req.URL.EscapedPath())
	}
	req.Header.Set("X-Hub-Signature-256", "sha256="+c.sign(signed))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send %s %s: %w", method, req.URL.Path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (c *Client) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
