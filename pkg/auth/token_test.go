package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("test-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestIssuePair(t *testing.T) {
	ti := newTestIssuer()
	pair, err := ti.IssuePair(42, "cook@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.SessionID)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	access, err := ti.Parse(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	id, err := access.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "cook@example.com", access.Email)

	refresh, err := ti.Parse(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, refresh.ID)
}

func TestParseRejects(t *testing.T) {
	ti := newTestIssuer()
	pair, err := ti.IssuePair(7, "a@example.com")
	require.NoError(t, err)

	other := NewTokenIssuer("other-secret", time.Minute, time.Hour)
	forged, err := other.IssuePair(7, "a@example.com")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Type: TokenTypeAccess}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  TokenType
	}{
		{"empty", "", TokenTypeAccess},
		{"garbage", "not.a.jwt", TokenTypeAccess},
		{"wrong secret", forged.AccessToken, TokenTypeAccess},
		{"refresh used as access", pair.RefreshToken, TokenTypeAccess},
		{"access used as refresh", pair.AccessToken, TokenTypeRefresh},
		{"alg none", none, TokenTypeAccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ti.Parse(tt.token, tt.want)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestParseExpired(t *testing.T) {
	ti := newTestIssuer()
	past := time.Now().Add(-time.Hour)
	ti.now = func() time.Time { return past }
	pair, err := ti.IssuePair(1, "a@example.com")
	require.NoError(t, err)

	ti.now = time.Now
	_, err = ti.Parse(pair.AccessToken, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestReissue(t *testing.T) {
	ti := newTestIssuer()
	pair, err := ti.IssuePair(9, "r@example.com")
	require.NoError(t, err)
	refresh, err := ti.Parse(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)

	access, exp, err := ti.Reissue(refresh)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := ti.Parse(access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "9", claims.Subject)
	assert.Equal(t, "r@example.com", claims.Email)
	assert.NotEqual(t, refresh.ID, claims.ID)
}
