// Package postgres owns the PostgreSQL connection pool, the schema
// migrations and the transaction helpers shared by every store.
//
// Stores accept a Querier so the same query code runs on *sql.DB or inside
// a *sql.Tx opened by WithTx:
//
//	err := postgres.WithTx(ctx, db, func(tx *sql.Tx) error {
//		id, err := cookbooks.Insert(ctx, tx, in)
//		...
//		return memberships.Create(ctx, tx, row)
//	})
//
// Queries use $n placeholders in ascending order of first use and pass
// timestamps from Go, so they run unchanged against the in-memory sqlite
// databases used in unit tests.
package postgres
