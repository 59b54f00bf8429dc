package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 30 * 24 * time.Hour

// IssueToken creates an HS256 token accepted by RequireAuth. owners limits
// the token to those owner ids; nil leaves it unrestricted.
func IssueToken(secret, subject string, owners []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("issue token: JWT secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if len(owners) > 0 {
		claims["owners"] = owners
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
