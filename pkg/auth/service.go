package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/sso"
	"github.com/platinummonkey/larder/pkg/users"
)

// UserResolver maps a verified external profile to a local user
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, profile *sso.Profile) (*users.User, error)
}

// Service runs the login, refresh and logout flows
type Service struct {
	providers *sso.Registry
	users     UserResolver
	tokens    *TokenIssuer
	sessions  *SessionStore
	states    *StateStore
	now       func() time.Time
}

// NewService creates an auth service
func NewService(providers *sso.Registry, resolver UserResolver, tokens *TokenIssuer, sessions *SessionStore, states *StateStore) *Service {
	return &Service{
		providers: providers,
		users:     resolver,
		tokens:    tokens,
		sessions:  sessions,
		states:    states,
		now:       time.Now,
	}
}

func (s *Service) provider(name string) (sso.Provider, error) {
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "unknown identity provider %q", name)
	}
	return p, nil
}

// BeginLogin stores a state nonce and returns the IdP redirect URL
func (s *Service) BeginLogin(ctx context.Context, providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	state, err := s.states.Issue(ctx, p.Name())
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to start login", err)
	}
	url, err := p.LoginURL(state)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamFailure, "failed to build login url", err)
	}
	return url, nil
}

// CompleteLogin verifies the callback, resolves the user and opens a session
func (s *Service) CompleteLogin(ctx context.Context, providerName, state string, r *http.Request) (*TokenPair, *users.User, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, nil, err
	}
	if err := s.states.Consume(ctx, p.Name(), state); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, nil, apperr.Wrap(apperr.Unauthenticated, "invalid login state", err)
		}
		return nil, nil, apperr.Wrap(apperr.Internal, "failed to verify login state", err)
	}

	profile, err := p.HandleCallback(r)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Unauthenticated, "identity provider rejected login", err)
	}

	u, err := s.users.ResolveOrCreate(ctx, profile)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "failed to issue tokens", err)
	}
	session := Session{UserID: u.ID, Provider: p.Name(), CreatedAt: s.now()}
	if err := s.sessions.Save(ctx, pair.SessionID, session, s.tokens.RefreshTTL()); err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "failed to store session", err)
	}
	return pair, u, nil
}

// Refresh verifies a refresh token against its live session and re-signs an
// access token. Every verification failure is Unauthenticated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, *Claims, error) {
	if refreshToken == "" {
		return "", time.Time{}, nil, apperr.New(apperr.Unauthenticated, "missing refresh token")
	}
	claims, err := s.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", time.Time{}, nil, apperr.Wrap(apperr.Unauthenticated, "invalid refresh token", err)
	}
	userID, _ := claims.UserID()
	if _, err := s.sessions.Get(ctx, userID, claims.ID); err != nil {
		if errors.Is(err, ErrUnknownSession) {
			return "", time.Time{}, claims, apperr.Wrap(apperr.Unauthenticated, "session revoked", err)
		}
		return "", time.Time{}, claims, apperr.Wrap(apperr.Internal, "failed to load session", err)
	}

	access, exp, err := s.tokens.Reissue(claims)
	if err != nil {
		return "", time.Time{}, claims, apperr.Wrap(apperr.Unauthenticated, "invalid refresh token", err)
	}
	return access, exp, claims, nil
}

// Logout revokes the session behind refreshToken. Unknown or invalid
// tokens are ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) (int64, error) {
	claims, err := s.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return 0, nil
	}
	userID, _ := claims.UserID()
	if err := s.sessions.Revoke(ctx, userID, claims.ID); err != nil {
		return userID, apperr.Wrap(apperr.Internal, "failed to revoke session", err)
	}
	return userID, nil
}

// RevokeAll ends every session of a user, e.g. on account deletion
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return apperr.Wrap(apperr.Internal, "failed to revoke sessions", err)
	}
	return nil
}

// Tokens exposes the issuer for access-token middleware
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}
