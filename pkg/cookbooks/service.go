package cookbooks

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/recipes"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// coverConcurrency bounds the cover lookups of one list response
const coverConcurrency = 8

// ImageURLs resolves stored image paths to URLs
type ImageURLs interface {
	URL(ctx context.Context, path string, public bool) (string, error)
}

// Service implements cookbook operations. Authorization has already been
// decided by the caller.
type Service struct {
	db      *sql.DB
	store   *Store
	members *membership.Service
	recipes *recipes.Service
	images  ImageURLs
}

// NewService creates a cookbook service
func NewService(db *sql.DB, members *membership.Service, recipeService *recipes.Service, images ImageURLs) *Service {
	return &Service{
		db:      db,
		store:   NewStore(db),
		members: members,
		recipes: recipeService,
		images:  images,
	}
}

func internal(ctx context.Context, message string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	observability.FromContext(ctx).WithError(err).Error(message)
	return apperr.Wrap(apperr.Internal, message, err)
}

// Create stores a cookbook owned by userID together with the OWNER
// membership
func (s *Service) Create(ctx context.Context, userID int64, in Create) (*Detail, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var id int64
	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if id, err = s.store.Create(ctx, tx, &in, userID); err != nil {
			return err
		}
		return s.members.CreateOwner(ctx, tx, membership.KindCookbook, userID, id)
	})
	if err != nil {
		return nil, internal(ctx, "failed to create cookbook", err)
	}
	observability.FromContext(ctx).WithField("cookbook_id", id).Info("Created cookbook")
	return s.Get(ctx, id, membership.RoleOwner)
}

// Get returns a cookbook with its members and the caller's role
func (s *Service) Get(ctx context.Context, id int64, role membership.Role) (*Detail, error) {
	c, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "cookbook not found")
	}
	if err != nil {
		return nil, internal(ctx, "failed to get cookbook", err)
	}
	members, err := s.members.List(ctx, membership.KindCookbook, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Cookbook: c, Members: members, Role: role}, nil
}

// ListMine returns the cookbooks userID is a member of with counts and
// cover images
func (s *Service) ListMine(ctx context.Context, userID int64, opts ListOptions, limit, offset int) ([]Summary, error) {
	items, err := s.store.ListByMember(ctx, userID, opts, limit, offset)
	if err != nil {
		return nil, internal(ctx, "failed to list cookbooks", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(coverConcurrency)
	for i := range items {
		if items[i].RecipeCount == 0 {
			continue
		}
		item := &items[i]
		g.Go(func() error { return s.cover(gctx, item) })
	}
	if err := g.Wait(); err != nil {
		return nil, internal(ctx, "failed to list cookbooks", err)
	}
	return items, nil
}

func (s *Service) cover(ctx context.Context, item *Summary) error {
	path, public, ok, err := s.store.Cover(ctx, item.ID)
	if err != nil || !ok {
		return err
	}
	u, err := s.images.URL(ctx, path, public)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamFailure, "failed to resolve cover url", err)
	}
	item.CoverURL = u
	return nil
}

// Update applies a partial update
func (s *Service) Update(ctx context.Context, id int64, role membership.Role, u Update) (*Detail, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, id, &u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "cookbook not found")
		}
		return nil, internal(ctx, "failed to update cookbook", err)
	}
	return s.Get(ctx, id, role)
}

// Delete removes a cookbook. Its recipes are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.NotFound, "cookbook not found")
		}
		return internal(ctx, "failed to delete cookbook", err)
	}
	observability.FromContext(ctx).WithField("cookbook_id", id).Info("Deleted cookbook")
	return nil
}

// Recipes lists the recipes of a cookbook as seen by userID, who holds
// role on the cookbook
func (s *Service) Recipes(ctx context.Context, userID, cookbookID int64, role membership.Role, f recipes.Filter, limit, offset int) ([]recipes.ListItem, error) {
	return s.recipes.ListByCookbook(ctx, userID, cookbookID, role, f, limit, offset)
}

// AddRecipe links a recipe into a cookbook. Adding it twice is a conflict.
func (s *Service) AddRecipe(ctx context.Context, cookbookID, recipeID int64) error {
	added, err := s.store.AddRecipe(ctx, cookbookID, recipeID)
	if err != nil {
		return internal(ctx, "failed to add recipe to cookbook", err)
	}
	if !added {
		return apperr.New(apperr.Conflict, "recipe is already in this cookbook")
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"cookbook_id": cookbookID,
		"recipe_id":   recipeID,
	}).Info("Added recipe to cookbook")
	return nil
}

// RemoveRecipe unlinks a recipe from a cookbook
func (s *Service) RemoveRecipe(ctx context.Context, cookbookID, recipeID int64) error {
	if err := s.store.RemoveRecipe(ctx, cookbookID, recipeID); err != nil {
		if errors.Is(err, ErrNotLinked) {
			return apperr.New(apperr.Invalid, "recipe is not in this cookbook")
		}
		return internal(ctx, "failed to remove recipe from cookbook", err)
	}
	return nil
}
