package cookbooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

var (
	// ErrNotFound is returned when no cookbook matches
	ErrNotFound = errors.New("cookbook not found")
	// ErrNotLinked is returned when a recipe is not in the cookbook
	ErrNotLinked = errors.New("recipe is not in the cookbook")
)

const cookbookColumns = `c.id, c.title, c.is_public, c.created_by, c.created_at, c.updated_at`

// Store persists cookbooks and their recipe links
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a cookbook store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func scanCookbook(row interface{ Scan(...interface{}) error }, extra ...interface{}) (*Cookbook, error) {
	var (
		c         Cookbook
		createdBy sql.NullInt64
	)
	dest := append([]interface{}{&c.ID, &c.Title, &c.IsPublic, &createdBy, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		c.CreatedBy = &createdBy.Int64
	}
	return &c, nil
}

// Create inserts a cookbook on q and returns its id
func (s *Store) Create(ctx context.Context, q postgres.Querier, in *Create, createdBy int64) (int64, error) {
	now := s.now()
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO cookbooks (title, is_public, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		in.Title, in.IsPublic, createdBy, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create cookbook: %w", err)
	}
	return id, nil
}

// Get retrieves a cookbook by id
func (s *Store) Get(ctx context.Context, id int64) (*Cookbook, error) {
	c, err := scanCookbook(s.db.QueryRowContext(ctx,
		`SELECT `+cookbookColumns+` FROM cookbooks c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cookbook: %w", err)
	}
	return c, nil
}

// Update applies the fields present in u
func (s *Store) Update(ctx context.Context, id int64, u *Update) error {
	var (
		sets []string
		args []interface{}
	)
	if u.Title != nil {
		args = append(args, *u.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if u.IsPublic != nil {
		args = append(args, *u.IsPublic)
		sets = append(sets, fmt.Sprintf("is_public = $%d", len(args)))
	}
	args = append(args, s.now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE cookbooks SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("failed to update cookbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a cookbook. Memberships and recipe links cascade; the
// recipes themselves are kept.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cookbooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cookbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByMember returns the cookbooks userID is a member of, most recently
// joined first, with recipe counts
func (s *Store) ListByMember(ctx context.Context, userID int64, opts ListOptions, limit, offset int) ([]Summary, error) {
	where := []string{"m.user_id = $1"}
	args := []interface{}{userID}
	if opts.Search != "" {
		args = append(args, "%"+strings.ToLower(opts.Search)+"%")
		where = append(where, fmt.Sprintf("LOWER(c.title) LIKE $%d", len(args)))
	}
	if opts.ExcludedRecipeID > 0 {
		args = append(args, opts.ExcludedRecipeID)
		where = append(where, fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM cookbook_recipes x WHERE x.cookbook_id = c.id AND x.recipe_id = $%d)", len(args)))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s, m.role, m.added_at,
			(SELECT COUNT(*) FROM cookbook_recipes cr WHERE cr.cookbook_id = c.id)
		FROM users_on_cookbooks m
		JOIN cookbooks c ON c.id = m.cookbook_id
		WHERE %s
		ORDER BY m.added_at DESC, c.id DESC
		LIMIT $%d OFFSET $%d`,
		cookbookColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cookbooks: %w", err)
	}
	defer rows.Close()

	result := []Summary{}
	for rows.Next() {
		var sum Summary
		c, err := scanCookbook(rows, &sum.Role, &sum.AddedAt, &sum.RecipeCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cookbook: %w", err)
		}
		sum.Cookbook = *c
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Cover returns the image of the cookbook's oldest recipe. ok is false
// when that recipe has no image or the cookbook is empty.
func (s *Store) Cover(ctx context.Context, cookbookID int64) (path string, public, ok bool, err error) {
	var image sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT r.image, r.is_public
		FROM cookbook_recipes cr
		JOIN recipes r ON r.id = cr.recipe_id
		WHERE cr.cookbook_id = $1
		ORDER BY r.created_at ASC, r.id ASC
		LIMIT 1`, cookbookID).Scan(&image, &public)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, fmt.Errorf("failed to get cookbook cover: %w", err)
	}
	return image.String, public, image.String != "", nil
}

// AddRecipe links a recipe into a cookbook. It reports false when the
// recipe was already there.
func (s *Store) AddRecipe(ctx context.Context, cookbookID, recipeID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cookbook_recipes (cookbook_id, recipe_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cookbook_id, recipe_id) DO NOTHING`,
		cookbookID, recipeID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to add recipe to cookbook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveRecipe unlinks a recipe from a cookbook
func (s *Store) RemoveRecipe(ctx context.Context, cookbookID, recipeID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cookbook_recipes WHERE cookbook_id = $1 AND recipe_id = $2`, cookbookID, recipeID)
	if err != nil {
		return fmt.Errorf("failed to remove recipe from cookbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotLinked
	}
	return nil
}
