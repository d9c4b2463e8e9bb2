package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/objectstore"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/quota"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// presignConcurrency bounds the URL lookups of one list response
const presignConcurrency = 8

// ImageStore stores recipe images
type ImageStore interface {
	Put(ctx context.Context, prefix string, public bool, body io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, path string, public bool) (string, error)
	Delete(ctx context.Context, path string, public bool) error
	SetVisibility(ctx context.Context, path string, wasPublic, public bool) error
}

// QuotaGate meters quota-gated operations
type QuotaGate interface {
	Check(ctx context.Context, userID int64, t quota.Type) (*quota.Quota, error)
	Increment(ctx context.Context, userID int64, t quota.Type, amount int) error
}

// Generator produces a recipe document from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
}

// Service implements recipe operations. Authorization has already been
// decided by the caller.
type Service struct {
	db        *sql.DB
	store     *Store
	members   *membership.Service
	images    ImageStore
	quotas    QuotaGate
	generator Generator
}

// NewService creates a recipe service
func NewService(db *sql.DB, members *membership.Service, images ImageStore, quotas QuotaGate, generator Generator) *Service {
	return &Service{
		db:        db,
		store:     NewStore(db),
		members:   members,
		images:    images,
		quotas:    quotas,
		generator: generator,
	}
}

// internal keeps classified errors and hides everything else
func internal(ctx context.Context, message string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	observability.FromContext(ctx).WithError(err).Error(message)
	return apperr.Wrap(apperr.Internal, message, err)
}

func (s *Service) get(ctx context.Context, id int64) (*Recipe, error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "recipe not found")
	}
	if err != nil {
		return nil, internal(ctx, "failed to get recipe", err)
	}
	return r, nil
}

// Create stores a new private recipe owned by userID. The recipe and its
// OWNER membership commit together.
func (s *Service) Create(ctx context.Context, userID int64, c Content) (*Detail, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	id, err := s.create(ctx, userID, &c)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id, membership.RoleOwner)
}

func (s *Service) create(ctx context.Context, userID int64, c *Content) (int64, error) {
	var id int64
	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		if id, err = s.store.Create(ctx, tx, c, userID); err != nil {
			return err
		}
		return s.members.CreateOwner(ctx, tx, membership.KindRecipe, userID, id)
	})
	if err != nil {
		return 0, internal(ctx, "failed to create recipe", err)
	}
	observability.FromContext(ctx).WithField("recipe_id", id).Info("Created recipe")
	return id, nil
}

// CreateWithAI generates a recipe from prompt and stores it. One AI quota
// unit is spent only once the generated recipe is accepted.
func (s *Service) CreateWithAI(ctx context.Context, userID int64, prompt string) (*Detail, error) {
	if _, err := s.quotas.Check(ctx, userID, quota.TypeAI); err != nil {
		return nil, err
	}

	payload, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var c Content
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamFailure, "error while generating the recipe", err)
	}
	if err := c.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.UpstreamFailure, "error while generating the recipe", err)
	}

	if err := s.quotas.Increment(ctx, userID, quota.TypeAI, 1); err != nil {
		return nil, err
	}
	id, err := s.create(ctx, userID, &c)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id, membership.RoleOwner)
}

// Get returns a recipe with its members, creator and the caller's role
func (s *Service) Get(ctx context.Context, id int64, role membership.Role) (*Detail, error) {
	r, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveURL(ctx, r); err != nil {
		return nil, err
	}
	members, err := s.members.List(ctx, membership.KindRecipe, id)
	if err != nil {
		return nil, err
	}

	d := &Detail{Recipe: r, Members: members, Role: role}
	if r.CreatedBy != nil {
		if d.CreatedByUser, err = s.store.Creator(ctx, *r.CreatedBy); err != nil {
			return nil, internal(ctx, "failed to get recipe", err)
		}
	}
	return d, nil
}

func (s *Service) resolveURL(ctx context.Context, r *Recipe) error {
	u, err := s.images.URL(ctx, r.ImagePath, r.IsPublic)
	if err != nil {
		return apperr.Wrap(apperr.UpstreamFailure, "failed to resolve image url", err)
	}
	r.ImageURL = u
	return nil
}

// ResolveURLs fills ImageURL of every item, presigning private images
// concurrently
func (s *Service) ResolveURLs(ctx context.Context, items []*Recipe) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(presignConcurrency)
	for _, r := range items {
		if r == nil || r.ImagePath == "" {
			continue
		}
		g.Go(func() error { return s.resolveURL(ctx, r) })
	}
	return g.Wait()
}

func (s *Service) resolveItems(ctx context.Context, items []ListItem) error {
	recipes := make([]*Recipe, len(items))
	for i := range items {
		recipes[i] = items[i].Recipe
	}
	return s.ResolveURLs(ctx, recipes)
}

// ListMine returns the recipes userID is a direct member of
func (s *Service) ListMine(ctx context.Context, userID int64, f Filter, limit, offset int) ([]ListItem, error) {
	items, err := s.store.ListByMember(ctx, userID, f, limit, offset)
	if err != nil {
		return nil, internal(ctx, "failed to list recipes", err)
	}
	if err := s.resolveItems(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListByCookbook returns a cookbook's recipes. Each item carries the
// caller's direct recipe role, or cookbookRole when they have none.
func (s *Service) ListByCookbook(ctx context.Context, userID, cookbookID int64, cookbookRole membership.Role, f Filter, limit, offset int) ([]ListItem, error) {
	items, err := s.store.ListByCookbook(ctx, userID, cookbookID, f, limit, offset)
	if err != nil {
		return nil, internal(ctx, "failed to list cookbook recipes", err)
	}
	for i := range items {
		if items[i].Role == "" {
			items[i].Role = cookbookRole
		}
	}
	if err := s.resolveItems(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Update applies a partial update. Resetting imageUrl deletes the stored
// image; toggling isPublic moves it to the other bucket.
func (s *Service) Update(ctx context.Context, id int64, role membership.Role, u Update) (*Detail, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	cur, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := observability.FromContext(ctx).WithField("recipe_id", id)

	moved := false
	if !u.ResetsImage() && u.IsPublic != nil && *u.IsPublic != cur.IsPublic && cur.ImagePath != "" {
		if err := s.images.SetVisibility(ctx, cur.ImagePath, cur.IsPublic, *u.IsPublic); err != nil {
			return nil, apperr.Wrap(apperr.UpstreamFailure, "failed to move recipe image", err)
		}
		moved = true
	}

	if err := s.store.Update(ctx, id, &u, u.ResetsImage()); err != nil {
		if moved {
			if mvErr := s.images.SetVisibility(ctx, cur.ImagePath, *u.IsPublic, cur.IsPublic); mvErr != nil {
				logger.WithError(mvErr).Warn("Failed to move recipe image back")
			}
		}
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "recipe not found")
		}
		return nil, internal(ctx, "failed to update recipe", err)
	}

	if u.ResetsImage() && cur.ImagePath != "" {
		if err := s.images.Delete(ctx, cur.ImagePath, cur.IsPublic); err != nil {
			logger.WithError(err).Warn("Failed to delete reset recipe image")
		}
	}
	return s.Get(ctx, id, role)
}

// Delete removes a recipe and its stored image
func (s *Service) Delete(ctx context.Context, id int64) error {
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.New(apperr.NotFound, "recipe not found")
		}
		return internal(ctx, "failed to delete recipe", err)
	}
	if cur.ImagePath != "" {
		if err := s.images.Delete(ctx, cur.ImagePath, cur.IsPublic); err != nil {
			observability.FromContext(ctx).WithError(err).WithField("recipe_id", id).Warn("Failed to delete recipe image")
		}
	}
	return nil
}

// UploadImage replaces a recipe's image and returns its URL
func (s *Service) UploadImage(ctx context.Context, id int64, body io.Reader, size int64, contentType string) (string, error) {
	if _, ok := objectstore.ImageExtension(contentType); !ok {
		return "", apperr.New(apperr.Invalid, "only jpeg, png and webp images are allowed")
	}
	cur, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}

	path, err := s.images.Put(ctx, imagePrefix(id), cur.IsPublic, body, size, contentType)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamFailure, "failed to upload image", err)
	}

	logger := observability.FromContext(ctx).WithField("recipe_id", id)
	if err := s.store.SetImage(ctx, id, path); err != nil {
		if delErr := s.images.Delete(ctx, path, cur.IsPublic); delErr != nil {
			logger.WithError(delErr).Warn("Failed to delete unreferenced image")
		}
		if errors.Is(err, ErrNotFound) {
			return "", apperr.New(apperr.NotFound, "recipe not found")
		}
		return "", internal(ctx, "failed to save recipe image", err)
	}
	if cur.ImagePath != "" {
		if err := s.images.Delete(ctx, cur.ImagePath, cur.IsPublic); err != nil {
			logger.WithError(err).Warn("Failed to delete previous recipe image")
		}
	}

	u, err := s.images.URL(ctx, path, cur.IsPublic)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamFailure, "failed to resolve image url", err)
	}
	return u, nil
}
