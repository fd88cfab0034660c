// Package auth verifies identity provider JWTs via JWKS and validates issuer/audience.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway = 30 * time.Second
)

// VerifierConfig describes the token issuer. JWKSURL defaults to
// <issuer>/.well-known/jwks.json. JWTSecret additionally accepts HS256 tokens
// signed with the project's shared secret.
type VerifierConfig struct {
	Issuer    string
	Audience  string
	JWKSURL   string
	JWTSecret string
}

// Verifier validates access tokens against a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	secret   []byte
	parser   *jwt.Parser
}

// NewVerifier builds a verifier with an optional JWKS URL override.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	issuer := normalizeIssuer(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience must be set")
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	methods := []string{
		jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
		jwt.SigningMethodES256.Name,
	}
	var secret []byte
	if cfg.JWTSecret != "" {
		secret = []byte(cfg.JWTSecret)
		methods = append(methods, jwt.SigningMethodHS256.Name)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
	)

	return &Verifier{
		issuer:   issuer,
		audience: cfg.Audience,
		keyfunc:  keyProvider,
		secret:   secret,
		parser:   parser,
	}, nil
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.lookupKey)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Email:     readString(mapClaims, "email"),
		Role:      readString(mapClaims, "role"),
		Raw:       mapClaims,
	}
	claims.FullName = fullNameFromMetadata(claims.Metadata())
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func (v *Verifier) lookupKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if v.secret == nil {
			return nil, errors.New("shared secret tokens not accepted")
		}
		return v.secret, nil
	}
	return v.keyfunc.Keyfunc(token)
}

// normalizeIssuer trims whitespace and the trailing slash; the provider's iss
// claim carries no trailing slash.
func normalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}


func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}
