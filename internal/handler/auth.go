package handler

import (
	"context"
	"net/http"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
)

// Identity is the caller's identity as asserted by the upstream auth proxy
// via trust headers. An empty UserID means an anonymous caller.
type Identity struct {
	UserID string
	Role   string
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity extracts the trust headers into the request context. It never
// rejects: endpoints that tolerate anonymous callers read an empty identity.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: r.Header.Get("X-User-Id"),
			Role:   r.Header.Get("X-User-Role"),
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) Identity {
	id, _ := r.Context().Value(identityKey).(Identity)
	return id
}

// RequireAuth rejects anonymous callers.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r).UserID == "" {
			respondWithError(w, r, apperr.New(apperr.KindUnauthenticated, "authentication required"))
			return
		}
		next(w, r)
	}
}

// RequireAdmin rejects everyone but admins.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id.UserID == "" {
			respondWithError(w, r, apperr.New(apperr.KindUnauthenticated, "authentication required"))
			return
		}
		if id.Role != order.RoleAdmin {
			respondWithError(w, r, apperr.New(apperr.KindPermissionDenied, "admin access required"))
			return
		}
		next(w, r)
	}
}
