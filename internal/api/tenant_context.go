package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ignite/segment-rules/internal/pkg/httputil"
)

// TenantHeader carries the caller's tenant id.
const TenantHeader = "X-Tenant-ID"

// TenantContextKey is the key for storing the tenant id in a request context
type TenantContextKey struct{}

// TenantFromContext returns the tenant id set by TenantMiddleware.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TenantContextKey{}).(int64)
	return id, ok && id > 0
}

// WithTenant returns a context carrying tenantID.
func WithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, TenantContextKey{}, tenantID)
}

// TenantMiddleware resolves the tenant for every request.
// Priority: 1. already in context, 2. X-Tenant-ID header, 3. fallback.
// A zero fallback makes the header mandatory.
func TenantMiddleware(fallback int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := TenantFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := fallback
			if raw := r.Header.Get(TenantHeader); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					httputil.BadRequest(w, TenantHeader+" must be a positive integer")
					return
				}
				tenantID = id
			}
			if tenantID <= 0 {
				httputil.BadRequest(w, TenantHeader+" header is required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
		})
	}
}
