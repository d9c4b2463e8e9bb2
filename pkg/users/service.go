package users

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/sso"
)

// ImageRemover deletes stored images
type ImageRemover interface {
	Delete(ctx context.Context, path string, public bool) error
}

// SessionRevoker ends every session of a user
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// Service implements the user operations behind the auth and /users routes
type Service struct {
	store    *Store
	images   ImageRemover
	sessions SessionRevoker
}

// NewService creates a user service. images may be nil.
func NewService(store *Store, images ImageRemover) *Service {
	return &Service{store: store, images: images}
}

// SetSessionRevoker makes Delete end the user's sessions
func (s *Service) SetSessionRevoker(r SessionRevoker) {
	s.sessions = r
}

// ResolveOrCreate returns the user for profile's email, creating it on first login
func (s *Service) ResolveOrCreate(ctx context.Context, profile *sso.Profile) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return nil, apperr.New(apperr.UpstreamFailure, "identity provider returned no email")
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap(apperr.Internal, "failed to resolve user", err)
	}

	u, err = s.store.Create(ctx, &User{
		Email:     email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to create user", err)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":  u.ID,
		"provider": profile.Provider,
	}).Info("Created user on first login")
	return u, nil
}

// Get returns the user by id
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.Unauthenticated, "user no longer exists")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to get user", err)
	}
	return u, nil
}

// Search finds other users by email or name
func (s *Service) Search(ctx context.Context, callerID int64, term string, limit, offset int) ([]Summary, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.New(apperr.Invalid, "you need to provide a search term")
	}

	found, err := s.store.Search(ctx, term, callerID, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to search users", err)
	}

	result := make([]Summary, 0, len(found))
	for i := range found {
		result = append(result, found[i].Summary())
	}
	return result, nil
}

// Delete removes the caller's account and the entities only they owned.
// Image cleanup is best effort.
func (s *Service) Delete(ctx context.Context, id int64) error {
	orphans, err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.Unauthenticated, "user no longer exists")
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to delete user", err)
	}

	logger := observability.FromContext(ctx).WithField("user_id", id)
	if s.images != nil {
		for _, img := range orphans {
			if err := s.images.Delete(ctx, img.Path, img.Public); err != nil {
				logger.WithError(err).WithField("path", img.Path).Warn("Failed to delete orphaned image")
			}
		}
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAll(ctx, id); err != nil {
			logger.WithError(err).Warn("Failed to revoke sessions of deleted user")
		}
	}
	logger.WithField("orphaned_images", len(orphans)).Info("Deleted user account")
	return nil
}
