package httpmw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat-sync/internal/security"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyAdmin  ctxKey = "admin"
)

const HeaderUserID = "X-User-ID"

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// UserHeader requires X-User-ID and puts it into the request context.
func UserHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if uid == "" {
			deny(w, http.StatusUnauthorized, "missing X-User-ID")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// AdminAuth requires a Bearer token with the admin role. A nil verifier
// means moderation is not configured.
func AdminAuth(v *security.AdminVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				deny(w, http.StatusServiceUnavailable, "admin api disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.Verify(strings.TrimSpace(auth[7:]))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, security.ErrNotAdmin) {
					status = http.StatusForbidden
				}
				deny(w, status, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyAdmin, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyAdmin).(string); ok {
		return v
	}
	return ""
}
