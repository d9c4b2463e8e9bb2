package quota

import (
	"bytes"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

func TestSweeperResetsExpired(t *testing.T) {
	db := sqltest.New(t)
	ctx := t.Context()
	store := NewStore(db)
	now := time.Date(2026, 6, 15, 0, 5, 0, 0, time.UTC)

	seed := []struct {
		email     string
		freq      Frequency
		lastReset time.Time
	}{
		{"stale-daily@example.com", Daily, now.AddDate(0, 0, -3)},
		{"fresh-daily@example.com", Daily, now.Add(-time.Hour)},
		{"stale-weekly@example.com", Weekly, now.AddDate(0, 0, -10)},
		{"never@example.com", Never, now.AddDate(-1, 0, 0)},
	}
	ids := map[string]int64{}
	for _, s := range seed {
		id := sqltest.InsertUser(t, db, s.email)
		ids[s.email] = id
		require.NoError(t, store.Create(ctx, db, &Quota{
			UserID: id, Type: TypeAI, Used: 3, Limit: 3,
			Resettable: s.freq != Never, ResetFrequency: s.freq, LastReset: s.lastReset,
		}))
	}

	var logs bytes.Buffer
	sweeper := NewSweeper(store, observability.NewLogger(observability.InfoLevel, &logs))
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, logs.String(), "Reset expired quotas")

	used := func(email string) int {
		q, err := store.Get(ctx, db, ids[email], TypeAI)
		require.NoError(t, err)
		return q.Used
	}
	assert.Equal(t, 0, used("stale-daily@example.com"))
	assert.Equal(t, 3, used("fresh-daily@example.com"))
	assert.Equal(t, 0, used("stale-weekly@example.com"))
	assert.Equal(t, 3, used("never@example.com"))
}

func TestSweeperStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE quotas SET used = 0`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`UPDATE quotas SET used = 0`).WillReturnError(assert.AnError)

	var logs bytes.Buffer
	n, err := NewSweeper(NewStore(db), observability.NewLogger(observability.InfoLevel, &logs)).Run(t.Context())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(4), n)
	assert.Contains(t, logs.String(), "Quota sweep failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
