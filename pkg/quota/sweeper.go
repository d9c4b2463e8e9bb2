package quota

import (
	"context"
	"time"

	"github.com/platinummonkey/larder/pkg/observability"
)

// Sweeper resets expired counters in bulk so idle users start fresh
// without waiting for a lazy reset
type Sweeper struct {
	store  *Store
	logger *observability.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper
func NewSweeper(store *Store, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one sweep over every reset frequency and returns the
// number of counters reset
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, freq := range Frequencies {
		cutoff, _ := freq.Cutoff(now)
		n, err := s.store.ResetExpired(ctx, freq, cutoff, now)
		if err != nil {
			s.logger.WithError(err).WithField("frequency", freq).Error("Quota sweep failed")
			return total, err
		}
		if n > 0 {
			s.logger.WithFields(map[string]interface{}{
				"frequency": freq,
				"reset":     n,
			}).Info("Reset expired quotas")
		}
		total += n
	}
	return total, nil
}
