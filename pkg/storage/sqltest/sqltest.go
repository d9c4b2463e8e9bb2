// Package sqltest opens in-memory sqlite databases carrying the production
// schema, for store and service tests that need real SQL semantics.
package sqltest

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

var dialect = strings.NewReplacer(
	"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
	"TIMESTAMPTZ", "TIMESTAMP",
	"JSONB", "TEXT",
	"DOUBLE PRECISION", "REAL",
)

var seq int64

// New returns a migrated in-memory database that is closed when the test ends.
// The pool is pinned to one connection so every query sees the same memory DB.
func New(t testing.TB) *sql.DB {
	t.Helper()
	return open(t, "sqlite3", nextDSN())
}

// a unique name keeps parallel tests isolated
func nextDSN() string {
	return fmt.Sprintf("file:larder%d?mode=memory&cache=shared&_foreign_keys=on", atomic.AddInt64(&seq, 1))
}

func open(t testing.TB, driverName, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, m := range postgres.Migrations {
		for _, stmt := range m.Statements {
			if _, err := db.Exec(dialect.Replace(stmt)); err != nil {
				t.Fatalf("migration %d: %v", m.Version, err)
			}
		}
	}
	return db
}

// InsertUser creates a user with the given email and returns its id
func InsertUser(t testing.TB, db *sql.DB, email string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (email, first_name, last_name, full_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		email, "", "", email, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

// InsertCookbook creates a private cookbook and returns its id. No
// membership rows are created.
func InsertCookbook(t testing.TB, db *sql.DB, title string, createdBy int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO cookbooks (title, is_public, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		title, false, createdBy, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert cookbook: %v", err)
	}
	return id
}

// InsertRecipe creates a private recipe and returns its id. No membership
// rows are created.
func InsertRecipe(t testing.TB, db *sql.DB, title string, createdBy int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(
		`INSERT INTO recipes (title, is_public, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		title, false, createdBy, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert recipe: %v", err)
	}
	return id
}

// LinkRecipe puts recipeID into cookbookID
func LinkRecipe(t testing.TB, db *sql.DB, cookbookID, recipeID int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO cookbook_recipes (cookbook_id, recipe_id, added_at) VALUES ($1, $2, $3)`,
		cookbookID, recipeID, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("link recipe: %v", err)
	}
}

// Grant inserts a membership row directly
func Grant(t testing.TB, db *sql.DB, table string, userID, entityID int64, role string) {
	t.Helper()
	column := "cookbook_id"
	if table == "users_on_recipes" {
		column = "recipe_id"
	}
	_, err := db.Exec(
		fmt.Sprintf(`INSERT INTO %s (user_id, %s, role, added_by, added_at) VALUES ($1, $2, $3, $4, $5)`, table, column),
		userID, entityID, role, userID, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("grant %s: %v", role, err)
	}
}
