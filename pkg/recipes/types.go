// Package recipes owns the recipe aggregate: storage, images, AI-assisted
// creation and the /recipes routes.
package recipes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/users"
)

// Difficulties accepted for a recipe
var Difficulties = []string{"Easy", "Medium", "Hard", "Michelin Star Chef"}

// Amount is an ingredient quantity. It accepts JSON numbers and numeric
// strings such as "200"; anything else decodes as zero.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Ingredient is one line of a recipe's ingredient list
type Ingredient struct {
	Name     string `json:"name"`
	Quantity Amount `json:"quantity"`
	Unit     string `json:"unit"`
}

// Nutrients are per-serving nutrition facts
type Nutrients struct {
	Calories      float64 `json:"calories"`
	Carbohydrates float64 `json:"carbohydrates"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
}

// Content holds the user-editable recipe fields
type Content struct {
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Servings     string       `json:"servings,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	PrepTime     *int         `json:"prepTime,omitempty"`
	CookTime     *int         `json:"cookTime,omitempty"`
	Nutrients    *Nutrients   `json:"nutrients,omitempty"`
	Cuisine      string       `json:"cuisine,omitempty"`
	Language     string       `json:"language,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
	Rating       *float64     `json:"rating,omitempty"`
	Ingredients  []Ingredient `json:"ingredients,omitempty"`
	Instructions []string     `json:"instructions,omitempty"`
}

// Validate checks the fields a client may set
func (c *Content) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return apperr.New(apperr.Invalid, "title is required")
	}
	if c.PrepTime != nil && *c.PrepTime < 0 || c.CookTime != nil && *c.CookTime < 0 {
		return apperr.New(apperr.Invalid, "prepTime and cookTime must not be negative")
	}
	if c.Difficulty != "" && !validDifficulty(c.Difficulty) {
		return apperr.Newf(apperr.Invalid, "difficulty must be one of %s", strings.Join(Difficulties, ", "))
	}
	return nil
}

func validDifficulty(d string) bool {
	for _, v := range Difficulties {
		if v == d {
			return true
		}
	}
	return false
}

// Recipe is a stored recipe. ImageURL is resolved from the stored object
// path on read and never persisted.
type Recipe struct {
	ID int64 `json:"id"`
	Content
	ImageURL  string    `json:"imageUrl,omitempty"`
	ImagePath string    `json:"-"`
	IsPublic  bool      `json:"isPublic"`
	CreatedBy *int64    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Detail is a single recipe with its members and the caller's role
type Detail struct {
	*Recipe
	CreatedByUser *users.Summary      `json:"createdByUser,omitempty"`
	Members       []membership.Member `json:"members"`
	Role          membership.Role     `json:"role"`
}

// ListItem is a recipe in a list response with the caller's role
type ListItem struct {
	*Recipe
	Role    membership.Role `json:"role"`
	AddedAt *time.Time      `json:"addedAt,omitempty"`
}

// Filter narrows recipe lists. Title is a case-insensitive substring;
// Cuisine and Difficulty must match exactly.
type Filter struct {
	Title      string
	Cuisine    string
	Difficulty string
}

// ImageField distinguishes an absent imageUrl from an explicit null
type ImageField struct {
	Set   bool
	Null  bool
	Value string
}

func (f *ImageField) UnmarshalJSON(b []byte) error {
	f.Set = true
	if string(bytes.TrimSpace(b)) == "null" {
		f.Null = true
		return nil
	}
	return json.Unmarshal(b, &f.Value)
}

// Update is a partial update. Only fields present in the request change.
type Update struct {
	Title        *string       `json:"title"`
	Description  *string       `json:"description"`
	Servings     *string       `json:"servings"`
	Notes        *string       `json:"notes"`
	PrepTime     *int          `json:"prepTime"`
	CookTime     *int          `json:"cookTime"`
	Nutrients    *Nutrients    `json:"nutrients"`
	Cuisine      *string       `json:"cuisine"`
	Language     *string       `json:"language"`
	Difficulty   *string       `json:"difficulty"`
	Rating       *float64      `json:"rating"`
	Ingredients  *[]Ingredient `json:"ingredients"`
	Instructions *[]string     `json:"instructions"`
	IsPublic     *bool         `json:"isPublic"`
	ImageURL     ImageField    `json:"imageUrl"`
}

// Validate rejects updates that cannot be applied
func (u *Update) Validate() error {
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return apperr.New(apperr.Invalid, "title must not be empty")
		}
		u.Title = &t
	}
	if u.ImageURL.Set && !u.ImageURL.Null {
		return apperr.New(apperr.Invalid, "imageUrl can only be reset to null; upload a new image instead")
	}
	if u.PrepTime != nil && *u.PrepTime < 0 || u.CookTime != nil && *u.CookTime < 0 {
		return apperr.New(apperr.Invalid, "prepTime and cookTime must not be negative")
	}
	if u.Difficulty != nil && *u.Difficulty != "" && !validDifficulty(*u.Difficulty) {
		return apperr.Newf(apperr.Invalid, "difficulty must be one of %s", strings.Join(Difficulties, ", "))
	}
	return nil
}

// ResetsImage reports whether the update clears the stored image
func (u *Update) ResetsImage() bool {
	return u.ImageURL.Set && u.ImageURL.Null
}

func imagePrefix(id int64) string {
	return fmt.Sprintf("recipes/%d", id)
}
