// Package auth verifies access tokens issued by the hosted identity provider
// and carries the caller's identity through the request context.
package auth

import (
	"context"
	"strings"
	"time"
)

type ctxKey int

const claimsKey ctxKey = iota

// Claims is the caller identity taken from a verified access token.
// Email and FullName seed the user's profile row; FullName comes from the
// provider's user_metadata (full_name, then name) when the sign-up form set it.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Email     string
	FullName  string
	// Role is the provider role, "authenticated" for signed-in users.
	Role string
	Raw  map[string]any
}

// Metadata returns the user_metadata object from the raw token, or nil.
func (c *Claims) Metadata() map[string]any {
	if c == nil {
		return nil
	}
	meta, _ := c.Raw["user_metadata"].(map[string]any)
	return meta
}

func fullNameFromMetadata(meta map[string]any) string {
	for _, key := range []string{"full_name", "name"} {
		if s, ok := meta[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// SubjectFromContext returns the caller's user id; false when the request was
// never authenticated.
func SubjectFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
