package domain

import "time"

// Session is a web-service login session. Only the token hash is stored.
type Session struct {
	TokenHash string
	TenantID  string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// BearerClaims are the self-contained claims of a short-lived bearer token.
type BearerClaims struct {
	UserID    string
	TenantID  string
	Role      Role
	ExpiresAt time.Time
}

// Handshake carries the raw credentials a client presented.
type Handshake struct {
	BearerToken  string
	SessionToken string
}
