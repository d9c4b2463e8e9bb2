package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of every token
const Issuer = "larder"

var (
	// ErrInvalidToken covers malformed, badly signed and wrong-type tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their exp claim
	ErrExpiredToken = errors.New("token expired")
)

// TokenIssuer signs and verifies HS256 access and refresh tokens
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates an issuer
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// RefreshTTL returns the lifetime of refresh tokens
func (ti *TokenIssuer) RefreshTTL() time.Duration {
	return ti.refreshTTL
}

func (ti *TokenIssuer) sign(userID int64, email string, typ TokenType, jti string, ttl time.Duration) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ttl)
	claims := &Claims{
		Email: email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// IssuePair creates an access token and a refresh token with a fresh session id
func (ti *TokenIssuer) IssuePair(userID int64, email string) (*TokenPair, error) {
	access, accessExp, err := ti.sign(userID, email, TokenTypeAccess, uuid.NewString(), ti.accessTTL)
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()
	refresh, refreshExp, err := ti.sign(userID, email, TokenTypeRefresh, sessionID, ti.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
	}, nil
}

// Reissue signs a new access token from verified refresh claims. Only the
// identity carries over; timestamps and jti are regenerated.
func (ti *TokenIssuer) Reissue(refresh *Claims) (string, time.Time, error) {
	userID, err := refresh.UserID()
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	return ti.sign(userID, refresh.Email, TokenTypeAccess, uuid.NewString(), ti.accessTTL)
}

// Parse verifies signature, issuer, expiry and token type
func (ti *TokenIssuer) Parse(token string, want TokenType) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, want)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims, nil
}
