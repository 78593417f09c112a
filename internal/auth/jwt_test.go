package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "bookshop-test-secret"

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// clockedService returns a service whose clock reads *now.
func clockedService(secret string, now *time.Time) *JWTService {
	s := NewJWTService(secret, 15*time.Minute, 7*24*time.Hour)
	s.now = func() time.Time { return *now }
	return s
}

// ============================================
// Access tokens
// ============================================

func TestAccessToken_RoundTrip(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)

	token, expiresAt, err := s.GenerateAccessToken("u-1", "reader")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(15*time.Minute), expiresAt)

	claims, err := s.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "reader", claims.Username)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessToken_Expiry(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)
	token, _, err := s.GenerateAccessToken("u-1", "reader")
	require.NoError(t, err)

	now = epoch.Add(14 * time.Minute)
	_, err = s.ValidateAccessToken(token)
	assert.NoError(t, err)

	now = epoch.Add(16 * time.Minute)
	claims, err := s.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestAccessToken_Rejected(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)
	other := clockedService("some-other-secret", &now)

	foreign, _, err := other.GenerateAccessToken("u-1", "reader")
	require.NoError(t, err)
	refresh, _, err := s.GenerateRefreshToken("u-1")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID:           "u-1",
		RegisteredClaims: s.registered("u-1", accessAudience, time.Hour),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer := s.registered("u-1", accessAudience, time.Hour)
	wrongIssuer.Issuer = "elsewhere"
	forged, err := s.sign(&Claims{UserID: "u-1", RegisteredClaims: wrongIssuer})
	require.NoError(t, err)

	mismatched, err := s.sign(&Claims{
		UserID:           "u-2",
		RegisteredClaims: s.registered("u-1", accessAudience, time.Hour),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"other secret", foreign},
		{"refresh token", refresh},
		{"alg none", unsigned},
		{"wrong issuer", forged},
		{"subject mismatch", mismatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := s.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

// ============================================
// Refresh tokens
// ============================================

func TestRefreshToken_RoundTrip(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)

	token, expiresAt, err := s.GenerateRefreshToken("u-9")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(7*24*time.Hour), expiresAt)

	userID, err := s.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-9", userID)

	now = expiresAt.Add(time.Second)
	userID, err = s.ValidateRefreshToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Empty(t, userID)
}

func TestRefreshToken_Rejected(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)
	access, _, err := s.GenerateAccessToken("u-1", "reader")
	require.NoError(t, err)
	foreign, _, err := clockedService("some-other-secret", &now).GenerateRefreshToken("u-1")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "invalid-token",
		"access token": access,
		"other secret": foreign,
	} {
		t.Run(name, func(t *testing.T) {
			userID, err := s.ValidateRefreshToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Empty(t, userID)
		})
	}
}

func TestTokens_UniqueWithinSameInstant(t *testing.T) {
	now := epoch
	s := clockedService(testSecret, &now)

	first, _, err := s.GenerateRefreshToken("u-1")
	require.NoError(t, err)
	second, _, err := s.GenerateRefreshToken("u-1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
