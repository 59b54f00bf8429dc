package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// SubjectKey is the context key for the authenticated caller's subject.
const SubjectKey contextKey = "subject"

// OwnersKey is the context key for the owner ids the caller may act for.
const OwnersKey contextKey = "owners"

// RequireAuth returns middleware that validates a Bearer JWT signed with
// HMAC and injects its subject and owner scope into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}

			var owners []string
			if raw, present := claims["owners"]; present {
				owners, ok = ownerScope(raw)
				if !ok {
					response.Unauthorized(w, "invalid owners claim")
					return
				}
			}

			subject, _ := claims.GetSubject()
			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			ctx = context.WithValue(ctx, OwnersKey, owners)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated subject, or "" outside RequireAuth.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(SubjectKey).(string)
	return s
}

// Owners returns the owner ids carried by the token. An empty slice means the
// token is not restricted to particular owners.
func Owners(ctx context.Context) []string {
	o, _ := ctx.Value(OwnersKey).([]string)
	return o
}

// ownerScope parses a present owners claim: a non-empty string or a
// non-empty array of non-empty strings. Anything else is rejected.
func ownerScope(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil, false
		}
		return []string{t}, true
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
