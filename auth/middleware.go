// Package auth provides Gin middleware for enforcing bearer JWT auth.
package auth

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalDevSubject is the identity used when auth is disabled.
const LocalDevSubject = "00000000-0000-0000-0000-000000000000"

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	PublicPaths map[string]bool
	DisableAuth bool
	// OnAuthenticated runs after a token verifies. An error aborts with 500.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		var claims *Claims
		if cfg.DisableAuth && AuthDisabled() {
			claims = &Claims{
				Subject: LocalDevSubject,
				Issuer:  "local",
				Email:   "dev@localhost",
				Raw:     map[string]any{"sub": LocalDevSubject},
			}
		} else {
			var ok bool
			claims, ok = authenticate(c, verifier)
			if !ok {
				return
			}
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(c, claims); err != nil {
				logrus.WithError(err).WithField("sub", claims.Subject).Error("auth hook failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
				return
			}
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, verifier *Verifier) (*Claims, bool) {
	if verifier == nil {
		respondUnauthorized(c, "auth verifier not configured")
		return nil, false
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		logrus.WithField("path", c.Request.URL.Path).Info("auth failure: missing Authorization header")
		respondUnauthorized(c, "missing authorization header")
		return nil, false
	}

	token, ok := extractBearerToken(authHeader)
	if !ok {
		logrus.WithField("path", c.Request.URL.Path).Info("auth failure: malformed Authorization header")
		respondUnauthorized(c, "invalid authorization header")
		return nil, false
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Info("auth failure: token invalid")
		respondUnauthorized(c, "invalid token")
		return nil, false
	}
	return claims, true
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}

// AuthDisabled reports whether auth may be skipped. It is never honored on Lambda.
func AuthDisabled() bool {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return false
	}
	if strings.EqualFold(os.Getenv("ENV"), "production") {
		return false
	}
	return true
}
