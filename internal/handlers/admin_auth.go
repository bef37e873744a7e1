package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/veloura/api/internal/platform/httpx"
)

const adminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards the admin route group with a shared API key compared
// in constant time. An empty configured key rejects every request.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	key = strings.TrimSpace(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("admin_disabled", "admin API is not configured", http.StatusServiceUnavailable))
				return
			}
			presented := strings.TrimSpace(r.Header.Get(adminKeyHeader))
			if presented == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "admin API key required", http.StatusUnauthorized))
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "invalid admin API key", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
