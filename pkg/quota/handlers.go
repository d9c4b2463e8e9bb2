package quota

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
)

// Handlers serves the caller's quota counters
type Handlers struct {
	service *Service
}

// NewHandlers creates quota handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers quota routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me/quotas", h.list).Methods("GET")
	router.HandleFunc("/users/me/quotas/{type}", h.get).Methods("GET")
}

// list handles GET /users/me/quotas
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	quotas, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, quotas)
}

// get handles GET /users/me/quotas/{type}
func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	t, err := ParseType(mux.Vars(r)["type"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	q, err := h.service.GetOrCreate(r.Context(), userID, t)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, q)
}
