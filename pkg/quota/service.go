package quota

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/observability"
)

// Service gates features on per-user counters
type Service struct {
	db       *sql.DB
	store    *Store
	defaults map[Type]Default
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService creates a quota service
func NewService(db *sql.DB, defaults map[Type]Default, metrics *observability.Metrics) *Service {
	return &Service{
		db:       db,
		store:    NewStore(db),
		defaults: defaults,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the user's counter for t, creating it from the
// defaults on first use and zeroing it when its reset period has passed
func (s *Service) GetOrCreate(ctx context.Context, userID int64, t Type) (*Quota, error) {
	def, ok := s.defaults[t]
	if !ok {
		return nil, apperr.Newf(apperr.Invalid, "%s is not a valid quota type", t)
	}

	q, err := s.store.Get(ctx, s.db, userID, t)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to load quota", err)
	}
	now := s.now()

	if q == nil {
		q = &Quota{
			UserID:         userID,
			Type:           t,
			Limit:          def.Limit,
			Resettable:     def.Resettable,
			ResetFrequency: def.ResetFrequency,
			LastReset:      now,
		}
		if err := s.store.Create(ctx, s.db, q); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to create quota", err)
		}
		// a concurrent request may have created it first
		if q, err = s.store.Get(ctx, s.db, userID, t); err != nil || q == nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to load quota", err)
		}
		return q, nil
	}

	if q.DueForReset(now) {
		if err := s.store.Reset(ctx, s.db, userID, t, now); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to reset quota", err)
		}
		q.Used = 0
		q.LastReset = now
	}
	return q, nil
}

// Check fails with QuotaExceeded when no uses remain
func (s *Service) Check(ctx context.Context, userID int64, t Type) (*Quota, error) {
	q, err := s.GetOrCreate(ctx, userID, t)
	if err != nil {
		return nil, err
	}
	if q.Exhausted() {
		s.metrics.RecordQuotaDenial(string(t))
		return q, apperr.Newf(apperr.QuotaExceeded, "%s quota exceeded (%d/%d)", t, q.Used, q.Limit)
	}
	return q, nil
}

// Increment records amount uses. It fails with QuotaExceeded when the
// counter would pass its limit.
func (s *Service) Increment(ctx context.Context, userID int64, t Type, amount int) error {
	if amount <= 0 {
		return apperr.New(apperr.Invalid, "amount must be positive")
	}
	ok, err := s.store.Increment(ctx, s.db, userID, t, amount)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to update quota", err)
	}
	if !ok {
		s.metrics.RecordQuotaDenial(string(t))
		return apperr.Newf(apperr.QuotaExceeded, "%s quota exceeded", t)
	}
	return nil
}

// Consume checks the quota then increments it
func (s *Service) Consume(ctx context.Context, userID int64, t Type, amount int) error {
	if _, err := s.Check(ctx, userID, t); err != nil {
		return err
	}
	return s.Increment(ctx, userID, t, amount)
}

// List returns all counters of a user, creating missing ones
func (s *Service) List(ctx context.Context, userID int64) ([]*Quota, error) {
	for _, t := range Types {
		if _, err := s.GetOrCreate(ctx, userID, t); err != nil {
			return nil, err
		}
	}
	quotas, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list quotas", err)
	}
	return quotas, nil
}
