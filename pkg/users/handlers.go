package users

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
)

// Handlers serves the /users routes
type Handlers struct {
	service *Service
}

// NewHandlers creates user handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers user routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", h.getMe).Methods("GET")
	router.HandleFunc("/users/me", h.deleteMe).Methods("DELETE")
	router.HandleFunc("/users/search", h.search).Methods("GET")
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
	}
	return id, ok
}

// getMe handles GET /users/me
func (h *Handlers) getMe(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// deleteMe handles DELETE /users/me
func (h *Handlers) deleteMe(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// search handles GET /users/search?search=
func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	id, ok := callerID(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePage(r, httputil.DefaultPageSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	found, err := h.service.Search(r.Context(), id, httputil.ParseQueryString(r, "search", ""), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, found)
}
