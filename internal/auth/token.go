// ABOUTME: Reads expiry information from JWT access tokens
// ABOUTME: Claims are parsed without signature verification; the hive owns the key

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtExpiry returns the exp claim of a JWT. ok is false for opaque tokens
// and JWTs without exp.
func jwtExpiry(raw string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}
