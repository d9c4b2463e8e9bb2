package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// Table is the permission store for one entity kind. Every call runs on
// the caller's Querier so it can join an open transaction.
type Table interface {
	Kind() Kind

	// Find returns the membership for the pair, or nil when absent
	Find(ctx context.Context, q postgres.Querier, userID, entityID int64) (*Membership, error)

	// Create inserts m and reports whether a row was written. An existing
	// pair is left untouched.
	Create(ctx context.Context, q postgres.Querier, m Membership) (bool, error)

	UpdateRole(ctx context.Context, q postgres.Querier, userID, entityID int64, role Role) error
	Delete(ctx context.Context, q postgres.Querier, userID, entityID int64) error

	// List returns every member of entityID, oldest first
	List(ctx context.Context, q postgres.Querier, entityID int64) ([]Member, error)
}

// ErrNoRow is returned by UpdateRole and Delete when the pair is absent
var ErrNoRow = errors.New("membership not found")

// SQLTable implements Table over one users_on_* table
type SQLTable struct {
	kind   Kind
	table  string
	column string
}

// NewCookbookTable returns the users_on_cookbooks table
func NewCookbookTable() *SQLTable {
	return &SQLTable{kind: KindCookbook, table: "users_on_cookbooks", column: "cookbook_id"}
}

// NewRecipeTable returns the users_on_recipes table
func NewRecipeTable() *SQLTable {
	return &SQLTable{kind: KindRecipe, table: "users_on_recipes", column: "recipe_id"}
}

// TableFor returns the table of kind
func TableFor(kind Kind) (Table, error) {
	switch kind {
	case KindCookbook:
		return NewCookbookTable(), nil
	case KindRecipe:
		return NewRecipeTable(), nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Kind returns the entity kind the table stores
func (t *SQLTable) Kind() Kind {
	return t.kind
}

// Find returns the membership of the pair, or nil when there is none
func (t *SQLTable) Find(ctx context.Context, q postgres.Querier, userID, entityID int64) (*Membership, error) {
	query := fmt.Sprintf(`SELECT role, added_by, added_at FROM %s WHERE user_id = $1 AND %s = $2`, t.table, t.column)

	m := &Membership{UserID: userID, EntityID: entityID}
	var addedBy sql.NullInt64
	err := q.QueryRowContext(ctx, query, userID, entityID).Scan(&m.Role, &addedBy, &m.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s membership: %w", t.kind, err)
	}
	if addedBy.Valid {
		m.AddedBy = &addedBy.Int64
	}
	return m, nil
}

// Create inserts m unless the pair exists and reports whether it did
func (t *SQLTable) Create(ctx context.Context, q postgres.Querier, m Membership) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, %s, role, added_by, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, %s) DO NOTHING
	`, t.table, t.column, t.column)

	if m.AddedAt.IsZero() {
		m.AddedAt = time.Now().UTC()
	}
	var addedBy interface{}
	if m.AddedBy != nil {
		addedBy = *m.AddedBy
	}

	result, err := q.ExecContext(ctx, query, m.UserID, m.EntityID, string(m.Role), addedBy, m.AddedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create %s membership: %w", t.kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// UpdateRole sets the role of the pair, returning ErrNoRow when absent
func (t *SQLTable) UpdateRole(ctx context.Context, q postgres.Querier, userID, entityID int64, role Role) error {
	query := fmt.Sprintf(`UPDATE %s SET role = $1 WHERE user_id = $2 AND %s = $3`, t.table, t.column)
	result, err := q.ExecContext(ctx, query, string(role), userID, entityID)
	if err != nil {
		return fmt.Errorf("failed to update %s membership: %w", t.kind, err)
	}
	return expectRow(result)
}

// Delete removes the pair, returning ErrNoRow when absent
func (t *SQLTable) Delete(ctx context.Context, q postgres.Querier, userID, entityID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND %s = $2`, t.table, t.column)
	result, err := q.ExecContext(ctx, query, userID, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete %s membership: %w", t.kind, err)
	}
	return expectRow(result)
}

// List returns the members of entityID with their user details
func (t *SQLTable) List(ctx context.Context, q postgres.Querier, entityID int64) ([]Member, error) {
	query := fmt.Sprintf(`
		SELECT u.id, u.email, u.full_name, u.avatar_url, m.role, m.added_at
		FROM %s m
		JOIN users u ON u.id = m.user_id
		WHERE m.%s = $1
		ORDER BY m.added_at ASC, u.id ASC
	`, t.table, t.column)

	rows, err := q.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s members: %w", t.kind, err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.AvatarURL, &m.Role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRow
	}
	return nil
}
