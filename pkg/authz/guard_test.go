package authz

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

type guardFixture struct {
	db       *sql.DB
	router   *mux.Router
	metrics  *observability.Metrics
	seen     membership.Role
	u1       int64
	u3       int64
	cookbook int64
	recipe   int64
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	db := sqltest.New(t)
	f := &guardFixture{
		db:      db,
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		u1:      sqltest.InsertUser(t, db, "u1@example.com"),
		u3:      sqltest.InsertUser(t, db, "u3@example.com"),
	}
	f.cookbook = sqltest.InsertCookbook(t, db, "C1", f.u1)
	f.recipe = sqltest.InsertRecipe(t, db, "R1", f.u1)
	sqltest.LinkRecipe(t, db, f.cookbook, f.recipe)
	sqltest.Grant(t, db, "users_on_cookbooks", f.u1, f.cookbook, "OWNER")
	sqltest.Grant(t, db, "users_on_recipes", f.u1, f.recipe, "OWNER")
	sqltest.Grant(t, db, "users_on_cookbooks", f.u3, f.cookbook, "VIEWER")

	guard := NewGuard(db, f.metrics)
	record := func(w http.ResponseWriter, r *http.Request, role membership.Role) {
		f.seen = role
		w.WriteHeader(http.StatusOK)
	}

	f.router = mux.NewRouter()
	f.router.HandleFunc("/recipes/{id}", guard.Require(membership.KindRecipe, "id", AnyRole...)(record)).Methods("GET")
	f.router.HandleFunc("/recipes/{id}", guard.Require(membership.KindRecipe, "id", OwnerEditor...)(record)).Methods("PATCH")
	f.router.HandleFunc("/cookbooks/{id}/leave", guard.Require(membership.KindCookbook, "id", NonOwner...)(record)).Methods("POST")
	f.router.HandleFunc("/cookbooks/{id}/recipes/{recipeId}",
		guard.Require(membership.KindCookbook, "id", OwnerEditor...)(
			guard.Also(membership.KindRecipe, "recipeId", OwnerEditor...)(record),
		),
	).Methods("POST")
	return f
}

func (f *guardFixture) do(method, path string, userID int64) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if userID != 0 {
		r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestGuardCascadeScenario(t *testing.T) {
	f := newGuardFixture(t)
	recipePath := "/recipes/" + itoa(f.recipe)

	w := f.do(http.MethodGet, recipePath, f.u3)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, membership.RoleViewer, f.seen)

	w = f.do(http.MethodPatch, recipePath, f.u3)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPatch, recipePath, f.u1)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, membership.RoleOwner, f.seen)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("recipe", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthzDecisionsTotal.WithLabelValues("recipe", "deny")))
}

func TestGuardRejects(t *testing.T) {
	f := newGuardFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   int64
		status int
	}{
		{"unauthenticated", http.MethodGet, "/recipes/" + itoa(f.recipe), 0, http.StatusUnauthorized},
		{"bad id", http.MethodGet, "/recipes/abc", f.u1, http.StatusBadRequest},
		{"missing recipe is forbidden", http.MethodGet, "/recipes/9999", f.u1, http.StatusForbidden},
		{"owner cannot leave", http.MethodPost, "/cookbooks/" + itoa(f.cookbook) + "/leave", f.u1, http.StatusForbidden},
		{"viewer can leave", http.MethodPost, "/cookbooks/" + itoa(f.cookbook) + "/leave", f.u3, http.StatusOK},
		{"link needs cookbook editor", http.MethodPost, "/cookbooks/" + itoa(f.cookbook) + "/recipes/" + itoa(f.recipe), f.u3, http.StatusForbidden},
		{"owner of both can link", http.MethodPost, "/cookbooks/" + itoa(f.cookbook) + "/recipes/" + itoa(f.recipe), f.u1, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.user)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestGuardAlsoChecksSecondEntity(t *testing.T) {
	f := newGuardFixture(t)
	other := sqltest.InsertRecipe(t, f.db, "Not mine", f.u3)
	sqltest.Grant(t, f.db, "users_on_recipes", f.u3, other, "OWNER")

	w := f.do(http.MethodPost, "/cookbooks/"+itoa(f.cookbook)+"/recipes/"+itoa(other), f.u1)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
