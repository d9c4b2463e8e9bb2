package quota

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

var testDefaults = DefaultsFromConfig(config.QuotaConfig{DefaultLimit: 3, DefaultFrequency: "DAILY"})

func newTestService(t *testing.T) (*Service, *sql.DB, int64, *observability.Metrics) {
	t.Helper()
	db := sqltest.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewService(db, testDefaults, metrics), db, sqltest.InsertUser(t, db, "cook@example.com"), metrics
}

func TestGetOrCreateUsesDefaults(t *testing.T) {
	svc, _, user, _ := newTestService(t)

	q, err := svc.GetOrCreate(t.Context(), user, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Used)
	assert.Equal(t, 3, q.Limit)
	assert.True(t, q.Resettable)
	assert.Equal(t, Daily, q.ResetFrequency)

	again, err := svc.GetOrCreate(t.Context(), user, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, q.Limit, again.Limit)

	_, err = svc.GetOrCreate(t.Context(), user, "IMAGES")
	assert.True(t, apperr.Is(err, apperr.Invalid))
}

func TestConsumeUntilExhausted(t *testing.T) {
	svc, _, user, metrics := newTestService(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Consume(ctx, user, TypeAI, 1), "use %d", i+1)
	}
	err := svc.Consume(ctx, user, TypeAI, 1)
	assert.True(t, apperr.Is(err, apperr.QuotaExceeded))

	q, err := svc.GetOrCreate(ctx, user, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Used)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotaDenialsTotal.WithLabelValues("AI")))
}

func TestIncrementNeverPassesLimit(t *testing.T) {
	svc, _, user, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.GetOrCreate(ctx, user, TypeAI)
	require.NoError(t, err)

	assert.True(t, apperr.Is(svc.Increment(ctx, user, TypeAI, 4), apperr.QuotaExceeded))
	assert.True(t, apperr.Is(svc.Increment(ctx, user, TypeAI, 0), apperr.Invalid))
	require.NoError(t, svc.Increment(ctx, user, TypeAI, 3))
}

func TestLazyReset(t *testing.T) {
	svc, _, user, _ := newTestService(t)
	ctx := t.Context()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	require.NoError(t, svc.Consume(ctx, user, TypeAI, 1))
	require.NoError(t, svc.Consume(ctx, user, TypeAI, 1))

	svc.now = func() time.Time { return start.Add(23 * time.Hour) }
	q, err := svc.GetOrCreate(ctx, user, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Used, "within the day")

	later := start.Add(25 * time.Hour)
	svc.now = func() time.Time { return later }
	q, err = svc.GetOrCreate(ctx, user, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Used)
	assert.True(t, later.Equal(q.LastReset))
}

func TestList(t *testing.T) {
	svc, _, user, _ := newTestService(t)
	quotas, err := svc.List(t.Context(), user)
	require.NoError(t, err)
	require.Len(t, quotas, 1)
	assert.Equal(t, TypeAI, quotas[0].Type)
}

func TestDueForReset(t *testing.T) {
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		quota Quota
		want  bool
	}{
		{"daily expired", Quota{Resettable: true, ResetFrequency: Daily, LastReset: now.Add(-25 * time.Hour)}, true},
		{"daily fresh", Quota{Resettable: true, ResetFrequency: Daily, LastReset: now.Add(-time.Hour)}, false},
		{"weekly expired", Quota{Resettable: true, ResetFrequency: Weekly, LastReset: now.AddDate(0, 0, -8)}, true},
		{"weekly fresh", Quota{Resettable: true, ResetFrequency: Weekly, LastReset: now.AddDate(0, 0, -6)}, false},
		{"monthly expired", Quota{Resettable: true, ResetFrequency: Monthly, LastReset: now.AddDate(0, -2, 0)}, true},
		{"never", Quota{Resettable: true, ResetFrequency: Never, LastReset: now.AddDate(-1, 0, 0)}, false},
		{"not resettable", Quota{Resettable: false, ResetFrequency: Daily, LastReset: now.AddDate(-1, 0, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.quota.DueForReset(now))
		})
	}
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("AI")
	require.NoError(t, err)
	assert.Equal(t, TypeAI, typ)

	_, err = ParseType("ai")
	assert.True(t, apperr.Is(err, apperr.Invalid))
}
