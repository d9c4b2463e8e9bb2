package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
)

// AccessTokenParser verifies access tokens
type AccessTokenParser interface {
	Parse(token string, want auth.TokenType) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests with a bearer access token
type AuthMiddleware struct {
	tokens AccessTokenParser
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens AccessTokenParser) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handler rejects requests without a valid access token. On success the
// claims and user id are added to the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "missing bearer token"))
			return
		}

		claims, err := m.tokens.Parse(token, auth.TokenTypeAccess)
		if err != nil {
			msg := "invalid access token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "access token expired"
			}
			httputil.WriteAppError(w, r, apperr.Wrap(apperr.Unauthenticated, msg, err))
			return
		}
		userID, _ := claims.UserID()

		ctx := contextkeys.WithAuth(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts the verified claims from the request
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(contextkeys.AuthKey).(*auth.Claims)
	return claims
}
