package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/bookshop/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator accepts exactly the tokens in its map.
type stubValidator struct {
	claims map[string]*auth.Claims
	err    error
}

func (s stubValidator) ValidateAccessToken(token string) (*auth.Claims, error) {
	if c, ok := s.claims[token]; ok {
		return c, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, auth.ErrInvalidToken
}

var (
	mina  = &auth.Claims{UserID: "u-mina", Username: "mina"}
	jonas = &auth.Claims{UserID: "u-jonas", Username: "jonas"}
	known = stubValidator{claims: map[string]*auth.Claims{"tok-mina": mina, "tok-jonas": jonas}}
)

// echoUser writes the caller's username, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if name := GetUsername(r.Context()); name != "" {
		_, _ = w.Write([]byte(name))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
})

func request(cookie, header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: AccessCookie, Value: cookie})
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

// ============================================
// Token extraction
// ============================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"none", "", "", ""},
		{"header", "", "Bearer tok-mina", "tok-mina"},
		{"scheme case", "", "bearer tok-mina", "tok-mina"},
		{"basic scheme", "", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "", "Bearer", ""},
		{"cookie", "tok-jonas", "", "tok-jonas"},
		{"cookie wins", "tok-jonas", "Bearer tok-mina", "tok-jonas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerToken(request(tt.cookie, tt.header)))
		})
	}
}

// ============================================
// RequireAuth
// ============================================

func TestRequireAuth(t *testing.T) {
	expired := stubValidator{err: auth.ErrExpiredToken}

	tests := []struct {
		name      string
		validator TokenValidator
		cookie    string
		header    string
		status    int
		body      string
	}{
		{"header token", known, "", "Bearer tok-mina", http.StatusOK, "mina"},
		{"cookie token", known, "tok-jonas", "", http.StatusOK, "jonas"},
		{"missing token", known, "", "", http.StatusUnauthorized, "unauthorized"},
		{"unknown token", known, "", "Bearer forged", http.StatusUnauthorized, "invalid token"},
		{"expired token", expired, "", "Bearer old", http.StatusUnauthorized, "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RequireAuth(tt.validator)(echoUser).ServeHTTP(rec, request(tt.cookie, tt.header))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			if tt.status == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireAuth_WithJWTService(t *testing.T) {
	jwtService := auth.NewJWTService("middleware-test-secret", 15*time.Minute, time.Hour)
	token, _, err := jwtService.GenerateAccessToken("u-mina", "mina")
	require.NoError(t, err)
	refresh, _, err := jwtService.GenerateRefreshToken("u-mina")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	RequireAuth(jwtService)(echoUser).ServeHTTP(rec, request("", "Bearer "+token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mina", rec.Body.String())

	rec = httptest.NewRecorder()
	RequireAuth(jwtService)(echoUser).ServeHTTP(rec, request("", "Bearer "+refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// OptionalAuth
// ============================================

func TestOptionalAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"valid token", "Bearer tok-mina", "mina"},
		{"no token", "", "anonymous"},
		{"invalid token ignored", "Bearer forged", "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			OptionalAuth(known)(echoUser).ServeHTTP(rec, request("", tt.header))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

// ============================================
// Context helpers
// ============================================

func TestClaimsContext(t *testing.T) {
	ctx := WithClaims(context.Background(), mina)

	claims, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Same(t, mina, claims)
	assert.Equal(t, "u-mina", GetUserID(ctx))
	assert.Equal(t, "mina", GetUsername(ctx))

	_, ok = ClaimsFrom(context.Background())
	assert.False(t, ok)
	assert.Empty(t, GetUserID(context.Background()))
	assert.Empty(t, GetUsername(WithClaims(context.Background(), nil)))
}
