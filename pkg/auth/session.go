package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/cache"
)

// StateTTL bounds the time between login redirect and callback
const StateTTL = 10 * time.Minute

// ErrUnknownSession is returned for revoked or expired refresh sessions
var ErrUnknownSession = errors.New("unknown session")

// SessionStore keeps refresh sessions in redis so logout can revoke them.
// Keys are session:{userID}:{jti}.
type SessionStore struct {
	redis *cache.RedisClient
}

// NewSessionStore creates a redis-backed session store
func NewSessionStore(redis *cache.RedisClient) *SessionStore {
	return &SessionStore{redis: redis}
}

func sessionKey(userID int64, id string) string {
	return fmt.Sprintf("session:%d:%s", userID, id)
}

// Save records a session until ttl elapses
func (s *SessionStore) Save(ctx context.Context, id string, session Session, ttl time.Duration) error {
	return s.redis.SetJSON(ctx, sessionKey(session.UserID, id), session, ttl)
}

// Get returns the session or ErrUnknownSession
func (s *SessionStore) Get(ctx context.Context, userID int64, id string) (*Session, error) {
	var session Session
	err := s.redis.GetJSON(ctx, sessionKey(userID, id), &session)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Revoke deletes one session
func (s *SessionStore) Revoke(ctx context.Context, userID int64, id string) error {
	return s.redis.Del(ctx, sessionKey(userID, id))
}

// RevokeAll deletes every session of userID and returns how many existed
func (s *SessionStore) RevokeAll(ctx context.Context, userID int64) (int, error) {
	return s.redis.DelPattern(ctx, fmt.Sprintf("session:%d:*", userID))
}

// StateStore issues single-use OAuth state nonces
type StateStore struct {
	redis *cache.RedisClient
}

// NewStateStore creates a redis-backed state store
func NewStateStore(redis *cache.RedisClient) *StateStore {
	return &StateStore{redis: redis}
}

func stateKey(state string) string {
	return "oauth_state:" + state
}

// Issue creates a nonce bound to provider
func (s *StateStore) Issue(ctx context.Context, provider string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	ok, err := s.redis.SetNX(ctx, stateKey(state), provider, StateTTL)
	if err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("state collision")
	}
	return state, nil
}

// Consume validates and deletes state; it succeeds at most once per nonce
func (s *StateStore) Consume(ctx context.Context, provider, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	bound, err := s.redis.GetDel(ctx, stateKey(state))
	if errors.Is(err, cache.ErrMiss) {
		return ErrInvalidState
	}
	if err != nil {
		return err
	}
	if bound != provider {
		return ErrInvalidState
	}
	return nil
}

// ErrInvalidState is returned for missing, reused or foreign state nonces
var ErrInvalidState = errors.New("invalid oauth state")
