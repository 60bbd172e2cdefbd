// Package auth resolves caller identity from bearer tokens issued by the
// external identity provider. Token issuance is out of scope; only claims
// are consumed here.
package auth

import (
	"errors"
	"strings"

	"github.com/geocubed/cubehub/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid_token")

// Identity is the resolved caller.
type Identity struct {
	UserName string
	Email    string
	Scopes   []string
}

// HasScope reports whether the identity carries the named scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier validates bearer tokens and extracts identity claims.
type Verifier struct {
	secret []byte
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{secret: []byte(cfg.AuthJWTSecret)}
}

// Parse validates the token signature and extracts the caller identity.
func (v *Verifier) Parse(raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	user := stringClaim(claims, "preferred_username")
	if user == "" {
		user = stringClaim(claims, "sub")
	}
	if user == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserName: user,
		Email:    stringClaim(claims, "email"),
		Scopes:   strings.Fields(stringClaim(claims, "scope")),
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
