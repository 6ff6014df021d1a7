package middleware

import (
	"context"
	"net/http"
	"strings"

	pkgmw "github.com/agentoven/agentoven/control-plane/pkg/middleware"
)

type contextKey string

const (
	// OrgIDKey is the context key for the organization id.
	OrgIDKey contextKey = "org_id"
)

// OrgExtractor extracts the organization id from the request. It checks
// the X-Organization-Id header, then the org query parameter, and falls
// back to "default".
func OrgExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := ""

		// Priority 1: X-Organization-Id header
		if h := r.Header.Get("X-Organization-Id"); h != "" {
			org = strings.TrimSpace(h)
		}

		// Priority 2: org query parameter
		if org == "" {
			if q := r.URL.Query().Get("org"); q != "" {
				org = strings.TrimSpace(q)
			}
		}

		if org == "" {
			org = "default"
		}

		ctx := pkgmw.SetOrgID(r.Context(), org)
		ctx = context.WithValue(ctx, OrgIDKey, org)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOrgID retrieves the organization id from the request context.
// Delegates to pkg/middleware.GetOrgID for cross-module consistency.
func GetOrgID(ctx context.Context) string {
	return pkgmw.GetOrgID(ctx)
}
