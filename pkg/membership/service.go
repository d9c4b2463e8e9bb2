package membership

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/storage/postgres"
	"github.com/platinummonkey/larder/pkg/users"
)

// Operation names used in logs and metrics
const (
	OpAdd    = "add"
	OpEdit   = "edit"
	OpRemove = "remove"
	OpLeave  = "leave"
)

// Service applies membership batches atomically. Each public call opens
// exactly one transaction; per-member steps are dispatched over an errgroup,
// run one at a time on the transaction, and the first failure rolls the
// whole batch back.
type Service struct {
	db      *sql.DB
	tables  map[Kind]Table
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService creates a membership service over the cookbook and recipe tables
func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{
		db: db,
		tables: map[Kind]Table{
			KindCookbook: NewCookbookTable(),
			KindRecipe:   NewRecipeTable(),
		},
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Table returns the permission table of kind
func (s *Service) Table(kind Kind) (Table, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, apperr.Newf(apperr.Invalid, "unknown entity kind %q", kind)
	}
	return t, nil
}

// AddMembers grants each member its role. Existing memberships are skipped
// without error and keep their role and audit fields.
func (s *Service) AddMembers(ctx context.Context, kind Kind, actorID, entityID int64, members []MemberInput) error {
	ids, err := validateInputs(members)
	if err != nil {
		return s.finish(ctx, kind, OpAdd, len(members), err)
	}

	err = s.batch(ctx, kind, actorID, ids, func(ctx context.Context, t Table, q postgres.Querier, i int) error {
		m := members[i]
		existing, err := t.Find(ctx, q, m.UserID, entityID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		// a concurrent add of the same pair loses at the unique key and is a no-op
		_, err = t.Create(ctx, q, Membership{
			UserID:   m.UserID,
			EntityID: entityID,
			Role:     m.Role,
			AddedBy:  &actorID,
			AddedAt:  s.now(),
		})
		return err
	})
	return s.finish(ctx, kind, OpAdd, len(members), err)
}

// EditMembers changes the role of existing members. A target without a
// membership fails the batch with NotAMember.
func (s *Service) EditMembers(ctx context.Context, kind Kind, actorID, entityID int64, members []MemberInput) error {
	ids, err := validateInputs(members)
	if err != nil {
		return s.finish(ctx, kind, OpEdit, len(members), err)
	}

	err = s.batch(ctx, kind, actorID, ids, func(ctx context.Context, t Table, q postgres.Querier, i int) error {
		m := members[i]
		existing, err := t.Find(ctx, q, m.UserID, entityID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Newf(apperr.NotAMember, "user %d is not a member of this %s", m.UserID, kind)
		}
		if existing.Role == m.Role {
			return nil
		}
		return t.UpdateRole(ctx, q, m.UserID, entityID, m.Role)
	})
	return s.finish(ctx, kind, OpEdit, len(members), err)
}

// RemoveMembers deletes the memberships of userIDs. A target without a
// membership fails the batch with NotAMember.
func (s *Service) RemoveMembers(ctx context.Context, kind Kind, actorID, entityID int64, userIDs []int64) error {
	if err := validateIDs(userIDs); err != nil {
		return s.finish(ctx, kind, OpRemove, len(userIDs), err)
	}

	err := s.batch(ctx, kind, actorID, userIDs, func(ctx context.Context, t Table, q postgres.Querier, i int) error {
		userID := userIDs[i]
		existing, err := t.Find(ctx, q, userID, entityID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Newf(apperr.NotAMember, "user %d is not a member of this %s", userID, kind)
		}
		return t.Delete(ctx, q, userID, entityID)
	})
	return s.finish(ctx, kind, OpRemove, len(userIDs), err)
}

// Leave removes the caller's own membership
func (s *Service) Leave(ctx context.Context, kind Kind, userID, entityID int64) error {
	t, err := s.Table(kind)
	if err != nil {
		return err
	}
	err = t.Delete(ctx, s.db, userID, entityID)
	if errors.Is(err, ErrNoRow) {
		err = apperr.Newf(apperr.NotAMember, "you are not a member of this %s", kind)
	}
	return s.finish(ctx, kind, OpLeave, 1, err)
}

// CreateOwner records userID as OWNER of a new entity. It runs on the
// caller's transaction so the entity and its owner commit together.
func (s *Service) CreateOwner(ctx context.Context, q postgres.Querier, kind Kind, userID, entityID int64) error {
	t, err := s.Table(kind)
	if err != nil {
		return err
	}
	created, err := t.Create(ctx, q, Membership{
		UserID:   userID,
		EntityID: entityID,
		Role:     RoleOwner,
		AddedBy:  &userID,
		AddedAt:  s.now(),
	})
	if err != nil {
		return err
	}
	if !created {
		return apperr.Newf(apperr.Conflict, "%s %d already has an owner row for user %d", kind, entityID, userID)
	}
	return nil
}

// Find returns the caller's membership or nil
func (s *Service) Find(ctx context.Context, kind Kind, userID, entityID int64) (*Membership, error) {
	t, err := s.Table(kind)
	if err != nil {
		return nil, err
	}
	return t.Find(ctx, s.db, userID, entityID)
}

// List returns the members of an entity
func (s *Service) List(ctx context.Context, kind Kind, entityID int64) ([]Member, error) {
	t, err := s.Table(kind)
	if err != nil {
		return nil, err
	}
	members, err := t.List(ctx, s.db, entityID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to list members", err)
	}
	return members, nil
}

type memberFunc func(ctx context.Context, t Table, q postgres.Querier, i int) error

// batch runs fn for every target inside one transaction. Self references
// are rejected before the transaction opens; each step then checks that
// its target user exists before calling fn. Steps queued behind a failed
// one return without touching the transaction.
func (s *Service) batch(ctx context.Context, kind Kind, actorID int64, targets []int64, fn memberFunc) error {
	t, err := s.Table(kind)
	if err != nil {
		return err
	}
	for _, id := range targets {
		if id == actorID {
			return apperr.New(apperr.SelfModification, "you cannot change your own membership")
		}
	}

	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// a transaction owns a single connection and the driver cannot
		// interleave statements with unread results, so each member step
		// runs to completion under mu
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i, id := range targets {
			g.Go(func() error {
				mu.Lock()
				defer mu.Unlock()
				if err := gctx.Err(); err != nil {
					return err
				}
				exists, err := users.Exists(gctx, tx, id)
				if err != nil {
					return err
				}
				if !exists {
					return apperr.Newf(apperr.UnknownUser, "user %d does not exist", id)
				}
				return fn(gctx, t, tx, i)
			})
		}
		return g.Wait()
	})
}

// finish records metrics and replaces store failures with a generic error
// after logging the cause
func (s *Service) finish(ctx context.Context, kind Kind, op string, size int, err error) error {
	s.metrics.RecordMembership(string(kind), op, size, err)
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.Internal {
		return err
	}
	observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"kind":      kind,
		"operation": op,
	}).Error("Membership mutation failed")
	return apperr.Wrap(apperr.Internal, "operation failed", err)
}

func validateInputs(members []MemberInput) ([]int64, error) {
	ids := make([]int64, len(members))
	for i, m := range members {
		if !m.Role.Valid() {
			return nil, apperr.Newf(apperr.Invalid, "invalid role %q", m.Role)
		}
		if !m.Role.Assignable() {
			return nil, apperr.New(apperr.Invalid, "the OWNER role cannot be assigned")
		}
		ids[i] = m.UserID
	}
	return ids, validateIDs(ids)
}

func validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return apperr.New(apperr.Invalid, "at least one member is required")
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return apperr.Newf(apperr.Invalid, "invalid user id %d", id)
		}
		if seen[id] {
			return apperr.Newf(apperr.Invalid, "user %d appears more than once", id)
		}
		seen[id] = true
	}
	return nil
}
