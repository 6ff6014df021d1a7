// Package middleware provides shared context helpers for the discovery
// API layer.
package middleware

import "context"

type contextKey string

const orgKey contextKey = "org_id"

// GetOrgID extracts the organization id from the context.
// Returns "default" if no organization is set.
func GetOrgID(ctx context.Context) string {
	if v, ok := ctx.Value(orgKey).(string); ok && v != "" {
		return v
	}
	return "default"
}

// SetOrgID stores the organization id in the context.
func SetOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}
