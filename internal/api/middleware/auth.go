package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/example/bookshop/internal/auth"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccessCookie is the cookie browsers carry the access token in.
const AccessCookie = "access_token"

// TokenValidator verifies an access token. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying the caller's claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

func GetUserID(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.UserID
	}
	return ""
}

func GetUsername(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.Username
	}
	return ""
}

// BearerToken returns the access token of r. The cookie wins over the
// Authorization header when both are present.
func BearerToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid access token with 401.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "unauthorized")
				return
			}
			claims, err := v.ValidateAccessToken(token)
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				unauthorized(w, "token expired")
				return
			case err != nil:
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the caller's claims when a valid token is present
// and otherwise serves the request anonymously.
func OptionalAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if claims, err := v.ValidateAccessToken(token); err == nil {
					r = r.WithContext(WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="bookshop"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
