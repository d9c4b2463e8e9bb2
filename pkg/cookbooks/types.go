// Package cookbooks owns the cookbook aggregate: cookbooks, the recipes
// they collect, and the /cookbooks routes.
package cookbooks

import (
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/membership"
)

// Cookbook is a named collection of recipes
type Cookbook struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	IsPublic  bool      `json:"isPublic"`
	CreatedBy *int64    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary is a cookbook in the caller's list. CoverURL is the image of the
// cookbook's oldest recipe.
type Summary struct {
	Cookbook
	Role        membership.Role `json:"role"`
	AddedAt     time.Time       `json:"addedAt"`
	RecipeCount int             `json:"recipeCount"`
	CoverURL    string          `json:"coverUrl,omitempty"`
}

// Detail is a cookbook with its members and the caller's role
type Detail struct {
	*Cookbook
	Members []membership.Member `json:"members"`
	Role    membership.Role     `json:"role"`
}

// Create is the body of a create request
type Create struct {
	Title    string `json:"title"`
	IsPublic bool   `json:"isPublic"`
}

// Validate normalizes and checks c
func (c *Create) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return apperr.New(apperr.Invalid, "title is required")
	}
	return nil
}

// Update is a partial update
type Update struct {
	Title    *string `json:"title"`
	IsPublic *bool   `json:"isPublic"`
}

// Validate normalizes and checks u
func (u *Update) Validate() error {
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return apperr.New(apperr.Invalid, "title must not be empty")
		}
		u.Title = &t
	}
	return nil
}

// ListOptions narrows the caller's cookbook list
type ListOptions struct {
	// Search matches the title case-insensitively
	Search string
	// ExcludedRecipeID drops cookbooks that already contain the recipe
	ExcludedRecipeID int64
}

// SelectableFields may be named in a list request's selection parameter
var SelectableFields = map[string]bool{
	"title":     true,
	"isPublic":  true,
	"createdBy": true,
	"createdAt": true,
	"updatedAt": true,
}
