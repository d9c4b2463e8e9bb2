package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// Source says how a role was obtained
type Source string

const (
	SourceDirect  Source = "direct"
	SourceCascade Source = "cookbook"
)

// Resolution is the caller's effective role on one entity
type Resolution struct {
	Role   membership.Role
	Source Source
}

// Resolver computes effective roles from membership rows. It takes no
// locks; pass the request's transaction as q to read its own writes.
type Resolver struct {
	cookbooks membership.Table
	recipes   membership.Table
}

// NewResolver creates a resolver over the standard permission tables
func NewResolver() *Resolver {
	return &Resolver{
		cookbooks: membership.NewCookbookTable(),
		recipes:   membership.NewRecipeTable(),
	}
}

// Resolve returns the caller's role on the entity, or nil when the caller
// has no access. A missing entity is indistinguishable from no access.
func (r *Resolver) Resolve(ctx context.Context, q postgres.Querier, kind membership.Kind, userID, entityID int64) (*Resolution, error) {
	switch kind {
	case membership.KindCookbook:
		return r.direct(ctx, q, r.cookbooks, userID, entityID)
	case membership.KindRecipe:
		res, err := r.direct(ctx, q, r.recipes, userID, entityID)
		if err != nil || res != nil {
			return res, err
		}
		return r.cascade(ctx, q, userID, entityID)
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func (r *Resolver) direct(ctx context.Context, q postgres.Querier, t membership.Table, userID, entityID int64) (*Resolution, error) {
	m, err := t.Find(ctx, q, userID, entityID)
	if err != nil || m == nil {
		return nil, err
	}
	return &Resolution{Role: m.Role, Source: SourceDirect}, nil
}

// cascade grants VIEWER on a recipe when the caller belongs to any cookbook
// containing it, whatever their role in that cookbook
func (r *Resolver) cascade(ctx context.Context, q postgres.Querier, userID, recipeID int64) (*Resolution, error) {
	query := `
		SELECT 1
		FROM cookbook_recipes cr
		JOIN users_on_cookbooks uc ON uc.cookbook_id = cr.cookbook_id
		WHERE cr.recipe_id = $1 AND uc.user_id = $2
		LIMIT 1
	`
	var one int
	err := q.QueryRowContext(ctx, query, recipeID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cookbook access: %w", err)
	}
	return &Resolution{Role: membership.RoleViewer, Source: SourceCascade}, nil
}
