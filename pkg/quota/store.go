package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/larder/pkg/storage/postgres"
)

// Store persists quota counters
type Store struct {
	db *sql.DB
}

// NewStore creates a quota store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const quotaColumns = `user_id, type, used, quota_limit, resettable, reset_frequency, last_reset`

func scanQuota(row interface{ Scan(...interface{}) error }) (*Quota, error) {
	q := &Quota{}
	err := row.Scan(&q.UserID, &q.Type, &q.Used, &q.Limit, &q.Resettable, &q.ResetFrequency, &q.LastReset)
	return q, err
}

// Get returns the counter or nil when it does not exist
func (s *Store) Get(ctx context.Context, q postgres.Querier, userID int64, t Type) (*Quota, error) {
	query := `SELECT ` + quotaColumns + ` FROM quotas WHERE user_id = $1 AND type = $2`
	quota, err := scanQuota(q.QueryRowContext(ctx, query, userID, string(t)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return quota, nil
}

// Create inserts a fresh counter unless one already exists
func (s *Store) Create(ctx context.Context, q postgres.Querier, quota *Quota) error {
	query := `
		INSERT INTO quotas (` + quotaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, type) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query,
		quota.UserID, string(quota.Type), quota.Used, quota.Limit,
		quota.Resettable, string(quota.ResetFrequency), quota.LastReset,
	)
	if err != nil {
		return fmt.Errorf("failed to create quota: %w", err)
	}
	return nil
}

// Reset zeroes one counter
func (s *Store) Reset(ctx context.Context, q postgres.Querier, userID int64, t Type, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE quotas SET used = 0, last_reset = $1 WHERE user_id = $2 AND type = $3`,
		now, userID, string(t),
	)
	if err != nil {
		return fmt.Errorf("failed to reset quota: %w", err)
	}
	return nil
}

// Increment adds amount to the counter only while it stays within the
// limit. It reports whether the row was updated.
func (s *Store) Increment(ctx context.Context, q postgres.Querier, userID int64, t Type, amount int) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE quotas SET used = used + $1 WHERE user_id = $2 AND type = $3 AND used + $1 <= quota_limit`,
		amount, userID, string(t),
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// List returns every counter of a user
func (s *Store) List(ctx context.Context, userID int64) ([]*Quota, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quotaColumns+` FROM quotas WHERE user_id = $1 ORDER BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotas: %w", err)
	}
	defer rows.Close()

	quotas := []*Quota{}
	for rows.Next() {
		quota, err := scanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quota: %w", err)
		}
		quotas = append(quotas, quota)
	}
	return quotas, rows.Err()
}

// ResetExpired zeroes every resettable counter of freq last reset before
// cutoff, returning how many were reset
func (s *Store) ResetExpired(ctx context.Context, freq Frequency, cutoff, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotas SET used = 0, last_reset = $1
		WHERE resettable = $2 AND reset_frequency = $3 AND last_reset < $4
	`, now, true, string(freq), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset %s quotas: %w", freq, err)
	}
	return result.RowsAffected()
}
