package quota

import (
	"time"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/config"
)

// Type names a quota-gated feature
type Type string

// TypeAI gates AI recipe generation
const TypeAI Type = "AI"

// Types is the closed set of quota types
var Types = []Type{TypeAI}

// ParseType validates a quota type
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", apperr.Newf(apperr.Invalid, "%s is not a valid quota type", s)
}

// Frequency is how often a resettable quota refills
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Never   Frequency = "NONE"
)

// Frequencies lists the frequencies that reset
var Frequencies = []Frequency{Daily, Weekly, Monthly}

// Cutoff returns the instant before which a quota last reset at that time
// is due. ok is false for NONE.
func (f Frequency) Cutoff(now time.Time) (time.Time, bool) {
	switch f {
	case Daily:
		return now.AddDate(0, 0, -1), true
	case Weekly:
		return now.AddDate(0, 0, -7), true
	case Monthly:
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

// Quota is one user's counter for one type
type Quota struct {
	UserID         int64     `json:"userId"`
	Type           Type      `json:"type"`
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	Resettable     bool      `json:"isResettable"`
	ResetFrequency Frequency `json:"resetFrequency"`
	LastReset      time.Time `json:"lastResetTimestamp"`
}

// Exhausted reports whether no uses remain
func (q *Quota) Exhausted() bool {
	return q.Used >= q.Limit
}

// DueForReset reports whether the counter should be zeroed at now
func (q *Quota) DueForReset(now time.Time) bool {
	if !q.Resettable {
		return false
	}
	cutoff, ok := q.ResetFrequency.Cutoff(now)
	return ok && q.LastReset.Before(cutoff)
}

// Default is the initial limit and policy for a quota type
type Default struct {
	Limit          int
	Resettable     bool
	ResetFrequency Frequency
}

// DefaultsFromConfig builds the per-type defaults
func DefaultsFromConfig(cfg config.QuotaConfig) map[Type]Default {
	freq := Frequency(cfg.DefaultFrequency)
	return map[Type]Default{
		TypeAI: {
			Limit:          cfg.DefaultLimit,
			Resettable:     freq != Never,
			ResetFrequency: freq,
		},
	}
}
