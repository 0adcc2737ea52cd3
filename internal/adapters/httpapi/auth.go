package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type ctxKey string

const identityCtxKey ctxKey = "identity"

// SessionCookie carries the opaque web-session token.
const SessionCookie = "session"

// HandshakeFromRequest collects the credentials a client presented. The
// access_token query parameter is honoured only when allowQuery is set,
// since browsers cannot put headers on a websocket upgrade.
func HandshakeFromRequest(r *http.Request, allowQuery bool) domain.Handshake {
	var h domain.Handshake
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		h.BearerToken = strings.TrimSpace(auth[7:])
	}
	if h.BearerToken == "" && allowQuery {
		h.BearerToken = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		h.SessionToken = strings.TrimSpace(c.Value)
	}
	return h
}

func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := h.svc.Auth.Authenticate(r.Context(), HandshakeFromRequest(r, false))
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "unauthorized")
				return
			}
			h.log.Error("authenticate request", "err", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), identityCtxKey, result.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityCtxKey).(domain.Identity)
	return id
}

func actorFrom(r *http.Request) domain.ActorContext {
	return identityFrom(r.Context()).Actor()
}
