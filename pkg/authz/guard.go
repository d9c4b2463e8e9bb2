package authz

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
)

// Allow-lists shared by the route tables
var (
	AnyRole     = []membership.Role{membership.RoleOwner, membership.RoleEditor, membership.RoleViewer}
	OwnerEditor = []membership.Role{membership.RoleOwner, membership.RoleEditor}
	OwnerOnly   = []membership.Role{membership.RoleOwner}
	NonOwner    = []membership.Role{membership.RoleEditor, membership.RoleViewer}
)

// Check is the pure authorization decision for a resolved role
func Check(kind membership.Kind, res *Resolution, allowed []membership.Role) error {
	if res == nil {
		return apperr.Newf(apperr.Forbidden, "no access to this %s", kind)
	}
	for _, role := range allowed {
		if role == res.Role {
			return nil
		}
	}
	return apperr.New(apperr.Forbidden, "insufficient role")
}

// HandlerFunc is an HTTP handler that receives the caller's resolved role
type HandlerFunc func(w http.ResponseWriter, r *http.Request, role membership.Role)

// Guard authorizes requests against entity memberships
type Guard struct {
	db       *sql.DB
	resolver *Resolver
	metrics  *observability.Metrics
}

// NewGuard creates a guard
func NewGuard(db *sql.DB, metrics *observability.Metrics) *Guard {
	return &Guard{db: db, resolver: NewResolver(), metrics: metrics}
}

// Authorize resolves the caller's role and checks it against allowed
func (g *Guard) Authorize(ctx context.Context, kind membership.Kind, userID, entityID int64, allowed []membership.Role) (membership.Role, error) {
	res, err := g.resolver.Resolve(ctx, g.db, kind, userID, entityID)
	if err != nil {
		observability.FromContext(ctx).WithError(err).Error("Failed to resolve role")
		return "", apperr.Wrap(apperr.Internal, "operation failed", err)
	}

	err = Check(kind, res, allowed)
	g.metrics.RecordAuthz(string(kind), err == nil)
	if err != nil {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"kind":      kind,
			"entity_id": entityID,
		}).Debug("Authorization denied")
		return "", err
	}
	return res.Role, nil
}

// Resolve returns the caller's role without an allow-list, or "" when none
func (g *Guard) Resolve(ctx context.Context, kind membership.Kind, userID, entityID int64) (membership.Role, error) {
	res, err := g.resolver.Resolve(ctx, g.db, kind, userID, entityID)
	if err != nil || res == nil {
		return "", err
	}
	return res.Role, nil
}

// Require returns middleware that reads the entity id from the route
// variable param, authorizes the caller, and hands the role to next
func (g *Guard) Require(kind membership.Kind, param string, allowed ...membership.Role) func(HandlerFunc) http.HandlerFunc {
	return func(next HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			role, ok := g.authorizeRequest(w, r, kind, param, allowed)
			if !ok {
				return
			}
			next(w, r, role)
		}
	}
}

// Also adds a second entity check to a guarded handler. The role passed on
// is the outer one.
func (g *Guard) Also(kind membership.Kind, param string, allowed ...membership.Role) func(HandlerFunc) HandlerFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request, role membership.Role) {
			if _, ok := g.authorizeRequest(w, r, kind, param, allowed); !ok {
				return
			}
			next(w, r, role)
		}
	}
}

func (g *Guard) authorizeRequest(w http.ResponseWriter, r *http.Request, kind membership.Kind, param string, allowed []membership.Role) (membership.Role, bool) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return "", false
	}
	entityID, err := strconv.ParseInt(mux.Vars(r)[param], 10, 64)
	if err != nil || entityID <= 0 {
		httputil.WriteAppError(w, r, apperr.Newf(apperr.Invalid, "invalid %s id", kind))
		return "", false
	}

	role, err := g.Authorize(r.Context(), kind, userID, entityID, allowed)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return "", false
	}
	return role, true
}
