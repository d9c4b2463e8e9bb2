package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// ErrNotFound is returned when no user matches
var ErrNotFound = errors.New("user not found")

const userColumns = `id, email, first_name, last_name, full_name, avatar_url, created_at, updated_at`

// Store persists users. Writes and read-your-writes lookups go to primary;
// search may be served by a replica.
type Store struct {
	primary *sql.DB
	replica func() *sql.DB
	now     func() time.Time
}

// NewStore creates a store. replica may be nil, in which case every query
// uses primary.
func NewStore(primary *sql.DB, replica func() *sql.DB) *Store {
	if replica == nil {
		replica = func() *sql.DB { return primary }
	}
	return &Store{primary: primary, replica: replica, now: time.Now}
}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.FullName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID retrieves a user by id
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.primary.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.primary.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// Create inserts u. A concurrent insert of the same email is not an error:
// the existing row is returned instead.
func (s *Store) Create(ctx context.Context, u *User) (*User, error) {
	now := s.now().UTC()
	var id int64
	err := s.primary.QueryRowContext(ctx, `
		INSERT INTO users (email, first_name, last_name, full_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		u.Email, u.FirstName, u.LastName, u.FullName, u.AvatarURL, now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetByEmail(ctx, u.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	created := *u
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// Exists reports whether a user id exists, using q so it can run inside a
// caller's transaction
func Exists(ctx context.Context, q postgres.Querier, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return true, nil
}

// Search matches term against email and full name, case-insensitively,
// excluding excludeID
func (s *Store) Search(ctx context.Context, term string, excludeID int64, limit, offset int) ([]User, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	rows, err := s.replica().QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE (LOWER(email) LIKE $1 OR LOWER(full_name) LIKE $1) AND id <> $2
		ORDER BY full_name, id
		LIMIT $3 OFFSET $4`,
		pattern, excludeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	result := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

// soleOwnerFilter selects entities of table/column owned only by $1
const soleOwnerFilter = `id IN (SELECT m.%[2]s FROM %[1]s m WHERE m.user_id = $1 AND m.role = 'OWNER')
	AND NOT EXISTS (SELECT 1 FROM %[1]s o WHERE o.%[2]s = %[3]s.id AND o.role = 'OWNER' AND o.user_id <> $1)`

// Delete removes the user. Recipes and cookbooks where the user is the only
// OWNER are deleted with them; their stored images are returned so the
// caller can remove them from object storage.
func (s *Store) Delete(ctx context.Context, id int64) ([]OrphanedImage, error) {
	var orphans []OrphanedImage

	err := postgres.WithTx(ctx, s.primary, func(tx *sql.Tx) error {
		for _, t := range []struct{ entity, membership, column string }{
			{"recipes", "users_on_recipes", "recipe_id"},
			{"cookbooks", "users_on_cookbooks", "cookbook_id"},
		} {
			filter := fmt.Sprintf(soleOwnerFilter, t.membership, t.column, t.entity)

			rows, err := tx.QueryContext(ctx,
				`SELECT image, is_public FROM `+t.entity+` WHERE image IS NOT NULL AND image <> '' AND `+filter, id)
			if err != nil {
				return fmt.Errorf("failed to list %s images: %w", t.entity, err)
			}
			for rows.Next() {
				var img OrphanedImage
				if err := rows.Scan(&img.Path, &img.Public); err != nil {
					rows.Close()
					return fmt.Errorf("failed to scan image: %w", err)
				}
				orphans = append(orphans, img)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM `+t.entity+` WHERE `+filter, id); err != nil {
				return fmt.Errorf("failed to delete owned %s: %w", t.entity, err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orphans, nil
}
