package cookbooks

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/recipes"
)

// summaryFields are always present in a projected list item
var summaryFields = []string{"id", "role", "addedAt", "recipeCount", "coverUrl"}

type messageResponse struct {
	Message string `json:"message"`
}

// Handlers serves the /cookbooks routes
type Handlers struct {
	service  *Service
	members  *membership.Handlers
	guard    *authz.Guard
	pageSize int
}

// NewHandlers creates cookbook handlers
func NewHandlers(service *Service, members *membership.Service, guard *authz.Guard, pageSize int) *Handlers {
	return &Handlers{
		service:  service,
		members:  membership.NewHandlers(members, membership.KindCookbook, "id"),
		guard:    guard,
		pageSize: pageSize,
	}
}

// RegisterRoutes registers cookbook routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	g := h.guard
	viewer := g.Require(membership.KindCookbook, "id", authz.AnyRole...)
	editor := g.Require(membership.KindCookbook, "id", authz.OwnerEditor...)
	owner := g.Require(membership.KindCookbook, "id", authz.OwnerOnly...)

	router.HandleFunc("/cookbooks", h.create).Methods("POST")
	router.HandleFunc("/cookbooks/mine", h.listMine).Methods("GET")

	router.HandleFunc("/cookbooks/{id:[0-9]+}", viewer(h.get)).Methods("GET")
	router.HandleFunc("/cookbooks/{id:[0-9]+}", editor(h.update)).Methods("PATCH")
	router.HandleFunc("/cookbooks/{id:[0-9]+}", owner(h.delete)).Methods("DELETE")
	router.HandleFunc("/cookbooks/{id:[0-9]+}/leave",
		g.Require(membership.KindCookbook, "id", authz.NonOwner...)(h.members.Leave)).Methods("POST")

	router.HandleFunc("/cookbooks/{id:[0-9]+}/members", owner(h.members.Add)).Methods("POST")
	router.HandleFunc("/cookbooks/{id:[0-9]+}/members", owner(h.members.Edit)).Methods("PATCH")
	router.HandleFunc("/cookbooks/{id:[0-9]+}/members", owner(h.members.Remove)).Methods("DELETE")

	router.HandleFunc("/cookbooks/{id:[0-9]+}/recipes", viewer(h.listRecipes)).Methods("GET")
	recipeEditor := g.Also(membership.KindRecipe, "recipeId", authz.OwnerEditor...)
	router.HandleFunc("/cookbooks/{id:[0-9]+}/recipes/{recipeId:[0-9]+}", editor(recipeEditor(h.addRecipe))).Methods("POST")
	router.HandleFunc("/cookbooks/{id:[0-9]+}/recipes/{recipeId:[0-9]+}", editor(h.removeRecipe)).Methods("DELETE")
}

// create handles POST /cookbooks
func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	var in Create
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	d, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, d)
}

// listMine handles GET /cookbooks/mine. search filters on title,
// excludedRecipeId hides cookbooks already holding that recipe, and
// selection limits the cookbook fields returned.
func (h *Handlers) listMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return
	}
	page, err := httputil.ParsePage(r, h.pageSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	excluded, err := httputil.ParseQueryInt64(r, "excludedRecipeId")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	selection, err := httputil.ParseSelection(r, SelectableFields)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	opts := ListOptions{
		Search:           httputil.ParseQueryString(r, "search", ""),
		ExcludedRecipeID: excluded,
	}
	items, err := h.service.ListMine(r.Context(), userID, opts, page.Limit, page.Offset())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if selection == nil {
		httputil.WriteSuccess(w, items)
		return
	}
	projected, err := project(items, selection)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, projected)
}

// project keeps the selected cookbook fields of each item
func project(items []Summary, selection map[string]bool) ([]map[string]json.RawMessage, error) {
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		kept := make(map[string]json.RawMessage, len(selection)+len(summaryFields))
		for _, k := range summaryFields {
			if v, ok := fields[k]; ok {
				kept[k] = v
			}
		}
		for k := range selection {
			if v, ok := fields[k]; ok {
				kept[k] = v
			}
		}
		out = append(out, kept)
	}
	return out, nil
}

// get handles GET /cookbooks/{id}
func (h *Handlers) get(w http.ResponseWriter, r *http.Request, role membership.Role) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id, role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// update handles PATCH /cookbooks/{id}
func (h *Handlers) update(w http.ResponseWriter, r *http.Request, role membership.Role) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var u Update
	if !httputil.ParseJSONOrError(w, r, &u) {
		return
	}
	d, err := h.service.Update(r.Context(), id, role, u)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request, _ membership.Role) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "Cookbook deleted successfully"})
}

// listRecipes handles GET /cookbooks/{id}/recipes
func (h *Handlers) listRecipes(w http.ResponseWriter, r *http.Request, role membership.Role) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	userID, _ := contextkeys.GetUserID(r.Context())
	page, err := httputil.ParsePage(r, h.pageSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	items, err := h.service.Recipes(r.Context(), userID, id, role, recipes.ParseFilter(r), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

func linkIDs(r *http.Request) (cookbookID, recipeID int64, err error) {
	if cookbookID, err = httputil.ParsePathInt64(r, "id"); err != nil {
		return 0, 0, err
	}
	if recipeID, err = httputil.ParsePathInt64(r, "recipeId"); err != nil {
		return 0, 0, err
	}
	return cookbookID, recipeID, nil
}

// addRecipe handles POST /cookbooks/{id}/recipes/{recipeId}. The caller
// must be able to edit both the cookbook and the recipe.
func (h *Handlers) addRecipe(w http.ResponseWriter, r *http.Request, _ membership.Role) {
	cookbookID, recipeID, err := linkIDs(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.AddRecipe(r.Context(), cookbookID, recipeID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, messageResponse{Message: "Recipe added to cookbook"})
}

// removeRecipe handles DELETE /cookbooks/{id}/recipes/{recipeId}
func (h *Handlers) removeRecipe(w http.ResponseWriter, r *http.Request, _ membership.Role) {
	cookbookID, recipeID, err := linkIDs(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.RemoveRecipe(r.Context(), cookbookID, recipeID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "Recipe removed from cookbook"})
}
