package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeAccessDenied      Code = "ACCESS_DENIED"
	CodeCrossTenantWrite  Code = "CROSS_TENANT_WRITE"
	CodeActorRequired     Code = "ACTOR_REQUIRED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeBrokerUnavailable Code = "BROKER_UNAVAILABLE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeTenantIDRequired  Code = "TENANT_ID_REQUIRED"
)

// Kind returns the taxonomy bucket a code belongs to. Callers that only care
// about the bucket match on the kind sentinel, e.g. errors.Is(err, ErrAccessDenied)
// also matches a cross-tenant write.
func (c Code) Kind() Code {
	switch c {
	case CodeCrossTenantWrite, CodeActorRequired:
		return CodeAccessDenied
	case CodeTenantIDRequired:
		return CodeValidationFailed
	default:
		return c
	}
}

// Error is the domain error type with a code and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by exact code, or by kind when the target is a kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code || e.Code.Kind() == t.Code
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is. Match by code, never by identity.
var (
	ErrAccessDenied      = NewError(CodeAccessDenied, "access denied")
	ErrCrossTenantWrite  = NewError(CodeCrossTenantWrite, "write target belongs to another tenant")
	ErrActorRequired     = NewError(CodeActorRequired, "actor context required")
	ErrNotFound          = NewError(CodeNotFound, "not found")
	ErrBrokerUnavailable = NewError(CodeBrokerUnavailable, "event broker unavailable")
	ErrUnauthorized      = NewError(CodeUnauthorized, "unauthorized")
	ErrValidationFailed  = NewError(CodeValidationFailed, "validation failed")
	ErrTenantIDRequired  = NewError(CodeTenantIDRequired, "tenant id required")
)

// CodeOf extracts the code of the first domain error in the chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
