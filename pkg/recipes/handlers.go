package recipes

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
)

// ImageFormField is the multipart field carrying an uploaded image
const ImageFormField = "img"

// multipartMemory is how much of an upload is buffered before spilling to disk
const multipartMemory = 32 << 20

type aiRequest struct {
	Prompt string `json:"prompt"`
}

type imageResponse struct {
	Data string `json:"data"`
}

// Handlers serves the /recipes routes
type Handlers struct {
	service   *Service
	members   *membership.Handlers
	guard     *authz.Guard
	maxUpload int64
	pageSize  int
}

// NewHandlers creates recipe handlers
func NewHandlers(service *Service, members *membership.Service, guard *authz.Guard, maxUpload int64, pageSize int) *Handlers {
	return &Handlers{
		service:   service,
		members:   membership.NewHandlers(members, membership.KindRecipe, "id"),
		guard:     guard,
		maxUpload: maxUpload,
		pageSize:  pageSize,
	}
}

// RegisterRoutes registers recipe routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	g := h.guard
	router.HandleFunc("/recipes", h.create).Methods("POST")
	router.HandleFunc("/recipes/ai", h.createWithAI).Methods("POST")
	router.HandleFunc("/recipes/mine", h.listMine).Methods("GET")

	router.HandleFunc("/recipes/{id:[0-9]+}", g.Require(membership.KindRecipe, "id", authz.AnyRole...)(h.get)).Methods("GET")
	router.HandleFunc("/recipes/{id:[0-9]+}", g.Require(membership.KindRecipe, "id", authz.OwnerEditor...)(h.update)).Methods("PATCH")
	router.HandleFunc("/recipes/{id:[0-9]+}", g.Require(membership.KindRecipe, "id", authz.OwnerOnly...)(h.delete)).Methods("DELETE")
	router.HandleFunc("/recipes/{id:[0-9]+}/image", g.Require(membership.KindRecipe, "id", authz.OwnerEditor...)(h.uploadImage)).Methods("POST")

	owner := g.Require(membership.KindRecipe, "id", authz.OwnerOnly...)
	router.HandleFunc("/recipes/{id:[0-9]+}/members", owner(h.members.Add)).Methods("POST")
	router.HandleFunc("/recipes/{id:[0-9]+}/members", owner(h.members.Edit)).Methods("PATCH")
	router.HandleFunc("/recipes/{id:[0-9]+}/members", owner(h.members.Remove)).Methods("DELETE")
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
	}
	return id, ok
}

// ParseFilter reads the title, cuisine and difficulty query parameters
func ParseFilter(r *http.Request) Filter {
	return Filter{
		Title:      httputil.ParseQueryString(r, "title", ""),
		Cuisine:    httputil.ParseQueryString(r, "cuisine", ""),
		Difficulty: httputil.ParseQueryString(r, "difficulty", ""),
	}
}

// create handles POST /recipes
func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var c Content
	if err := httputil.ParseJSON(r, &c); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	d, err := h.service.Create(r.Context(), userID, c)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, d)
}

// createWithAI handles POST /recipes/ai
func (h *Handlers) createWithAI(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req aiRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	d, err := h.service.CreateWithAI(r.Context(), userID, req.Prompt)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, d)
}

// listMine handles GET /recipes/mine
func (h *Handlers) listMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePage(r, h.pageSize)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	items, err := h.service.ListMine(r.Context(), userID, ParseFilter(r), page.Limit, page.Offset())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

// get handles GET /recipes/{id}
func (h *Handlers) get(w http.ResponseWriter, r *http.Request, role membership.Role) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	d, err := h.service.Get(r.Context(), id, role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// update handles PATCH /recipes/{id}
func (h *Handlers) update(w http.ResponseWriter, r *http.Request, role membership.Role) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	var u Update
	if err := httputil.ParseJSON(r, &u); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	d, err := h.service.Update(r.Context(), id, role, u)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

// delete handles DELETE /recipes/{id}
func (h *Handlers) delete(w http.ResponseWriter, r *http.Request, _ membership.Role) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "Recipe deleted successfully"})
}

// uploadImage handles POST /recipes/{id}/image with a multipart "img" file.
// The content type is sniffed from the bytes, not taken from the client.
func (h *Handlers) uploadImage(w http.ResponseWriter, r *http.Request, _ membership.Role) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteAppError(w, r, apperr.New(apperr.Invalid, "image is too large"))
			return
		}
		httputil.WriteAppError(w, r, apperr.Wrap(apperr.Invalid, "invalid multipart body", err))
		return
	}
	file, header, err := r.FormFile(ImageFormField)
	if err != nil {
		httputil.WriteAppError(w, r, apperr.Newf(apperr.Invalid, "%s file is required", ImageFormField))
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		httputil.WriteAppError(w, r, apperr.New(apperr.Invalid, "image is too large"))
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		httputil.WriteAppError(w, r, apperr.Wrap(apperr.Invalid, "failed to read image", err))
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	url, err := h.service.UploadImage(r.Context(), id, io.MultiReader(bytes.NewReader(head), file), header.Size, contentType)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, imageResponse{Data: url})
}
