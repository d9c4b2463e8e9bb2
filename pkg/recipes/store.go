package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
	"github.com/platinummonkey/larder/pkg/users"
)

// ErrNotFound is returned when no recipe matches
var ErrNotFound = errors.New("recipe not found")

const recipeColumns = `r.id, r.title, r.description, r.servings, r.notes, r.prep_time, r.cook_time,
	r.nutrients, r.cuisine, r.language, r.difficulty, r.rating, r.ingredients, r.instructions,
	r.image, r.is_public, r.created_by, r.created_at, r.updated_at`

// Store persists recipes
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a recipe store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func jsonValue(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanRecipe(row interface{ Scan(...interface{}) error }, extra ...interface{}) (*Recipe, error) {
	var (
		r                                                      Recipe
		description, servings, notes, cuisine, lang, diff, img sql.NullString
		prep, cook, createdBy                                  sql.NullInt64
		rating                                                 sql.NullFloat64
		nutrients, ingredients, instructions                   []byte
	)
	dest := []interface{}{
		&r.ID, &r.Title, &description, &servings, &notes, &prep, &cook,
		&nutrients, &cuisine, &lang, &diff, &rating, &ingredients, &instructions,
		&img, &r.IsPublic, &createdBy, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	r.Description, r.Servings, r.Notes = description.String, servings.String, notes.String
	r.Cuisine, r.Language, r.Difficulty = cuisine.String, lang.String, diff.String
	r.ImagePath = img.String
	if prep.Valid {
		v := int(prep.Int64)
		r.PrepTime = &v
	}
	if cook.Valid {
		v := int(cook.Int64)
		r.CookTime = &v
	}
	if rating.Valid {
		r.Rating = &rating.Float64
	}
	if createdBy.Valid {
		r.CreatedBy = &createdBy.Int64
	}
	if len(nutrients) > 0 {
		if err := json.Unmarshal(nutrients, &r.Nutrients); err != nil {
			return nil, fmt.Errorf("failed to decode nutrients: %w", err)
		}
	}
	if len(ingredients) > 0 {
		if err := json.Unmarshal(ingredients, &r.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to decode ingredients: %w", err)
		}
	}
	if len(instructions) > 0 {
		if err := json.Unmarshal(instructions, &r.Instructions); err != nil {
			return nil, fmt.Errorf("failed to decode instructions: %w", err)
		}
	}
	return &r, nil
}

// Create inserts a private recipe on q and returns its id
func (s *Store) Create(ctx context.Context, q postgres.Querier, c *Content, createdBy int64) (int64, error) {
	nutrients, err := jsonValue(c.Nutrients, c.Nutrients == nil)
	if err != nil {
		return 0, err
	}
	ingredients, err := jsonValue(c.Ingredients, len(c.Ingredients) == 0)
	if err != nil {
		return 0, err
	}
	instructions, err := jsonValue(c.Instructions, len(c.Instructions) == 0)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var id int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO recipes (title, description, servings, notes, prep_time, cook_time, nutrients,
			cuisine, language, difficulty, rating, ingredients, instructions, is_public,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		c.Title, nullString(c.Description), nullString(c.Servings), nullString(c.Notes),
		c.PrepTime, c.CookTime, nutrients, nullString(c.Cuisine), nullString(c.Language),
		nullString(c.Difficulty), c.Rating, ingredients, instructions, false,
		createdBy, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create recipe: %w", err)
	}
	return id, nil
}

// Get retrieves a recipe by id
func (s *Store) Get(ctx context.Context, id int64) (*Recipe, error) {
	r, err := scanRecipe(s.db.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes r WHERE r.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return r, nil
}

// Update applies the fields present in u. clearImage also drops the
// stored image path.
func (s *Store) Update(ctx context.Context, id int64, u *Update, clearImage bool) error {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", nullString(*u.Description))
	}
	if u.Servings != nil {
		set("servings", nullString(*u.Servings))
	}
	if u.Notes != nil {
		set("notes", nullString(*u.Notes))
	}
	if u.PrepTime != nil {
		set("prep_time", *u.PrepTime)
	}
	if u.CookTime != nil {
		set("cook_time", *u.CookTime)
	}
	if u.Nutrients != nil {
		v, err := jsonValue(u.Nutrients, false)
		if err != nil {
			return err
		}
		set("nutrients", v)
	}
	if u.Cuisine != nil {
		set("cuisine", nullString(*u.Cuisine))
	}
	if u.Language != nil {
		set("language", nullString(*u.Language))
	}
	if u.Difficulty != nil {
		set("difficulty", nullString(*u.Difficulty))
	}
	if u.Rating != nil {
		set("rating", *u.Rating)
	}
	if u.Ingredients != nil {
		v, err := jsonValue(*u.Ingredients, len(*u.Ingredients) == 0)
		if err != nil {
			return err
		}
		set("ingredients", v)
	}
	if u.Instructions != nil {
		v, err := jsonValue(*u.Instructions, len(*u.Instructions) == 0)
		if err != nil {
			return err
		}
		set("instructions", v)
	}
	if u.IsPublic != nil {
		set("is_public", *u.IsPublic)
	}
	if clearImage {
		set("image", nil)
	}
	set("updated_at", s.now())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE recipes SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update recipe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImage records a new image path
func (s *Store) SetImage(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET image = $1, updated_at = $2 WHERE id = $3`, nullString(path), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to set recipe image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a recipe; memberships and cookbook links cascade
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// filterClause appends f's conditions to where and args
func filterClause(f Filter, where []string, args []interface{}) ([]string, []interface{}) {
	if f.Title != "" {
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
		where = append(where, fmt.Sprintf("LOWER(r.title) LIKE $%d", len(args)))
	}
	if f.Cuisine != "" {
		args = append(args, f.Cuisine)
		where = append(where, fmt.Sprintf("r.cuisine = $%d", len(args)))
	}
	if f.Difficulty != "" {
		args = append(args, f.Difficulty)
		where = append(where, fmt.Sprintf("r.difficulty = $%d", len(args)))
	}
	return where, args
}

func (s *Store) list(ctx context.Context, from string, where []string, args []interface{}, limit, offset int) ([]ListItem, error) {
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s, m.role, m.added_at
		%s
		WHERE %s
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $%d OFFSET $%d`,
		recipeColumns, from, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	items := []ListItem{}
	for rows.Next() {
		var (
			role    sql.NullString
			addedAt sql.NullTime
		)
		r, err := scanRecipe(rows, &role, &addedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		item := ListItem{Recipe: r, Role: membership.Role(role.String)}
		if addedAt.Valid {
			item.AddedAt = &addedAt.Time
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListByMember returns the recipes userID has a direct membership on,
// newest first
func (s *Store) ListByMember(ctx context.Context, userID int64, f Filter, limit, offset int) ([]ListItem, error) {
	where, args := filterClause(f, []string{"m.user_id = $1"}, []interface{}{userID})
	return s.list(ctx, `FROM users_on_recipes m JOIN recipes r ON r.id = m.recipe_id`, where, args, limit, offset)
}

// ListByCookbook returns the recipes in a cookbook, newest first. Role is
// the caller's direct recipe role, empty when they have none.
func (s *Store) ListByCookbook(ctx context.Context, userID, cookbookID int64, f Filter, limit, offset int) ([]ListItem, error) {
	where, args := filterClause(f, []string{"cr.cookbook_id = $2"}, []interface{}{userID, cookbookID})
	return s.list(ctx, `FROM cookbook_recipes cr
		JOIN recipes r ON r.id = cr.recipe_id
		LEFT JOIN users_on_recipes m ON m.recipe_id = r.id AND m.user_id = $1`, where, args, limit, offset)
}

// Creator returns the public profile of a recipe's creator
func (s *Store) Creator(ctx context.Context, userID int64) (*users.Summary, error) {
	var u users.Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, avatar_url FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.FullName, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe creator: %w", err)
	}
	return &u, nil
}
