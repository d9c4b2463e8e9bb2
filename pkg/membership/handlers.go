package membership

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/httputil"
)

// AddMembersRequest is the body of add and edit member requests
type AddMembersRequest struct {
	Members []MemberInput `json:"members"`
}

// RemoveMembersRequest is the body of remove member requests
type RemoveMembersRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Handlers serves the member routes of one entity kind. The methods have
// the guarded handler signature and expect the entity id in the route
// variable param; the allow-list is applied by the caller's guard.
type Handlers struct {
	service *Service
	kind    Kind
	param   string
}

// NewHandlers creates member handlers for kind
func NewHandlers(service *Service, kind Kind, param string) *Handlers {
	return &Handlers{service: service, kind: kind, param: param}
}

func (h *Handlers) target(w http.ResponseWriter, r *http.Request) (actorID, entityID int64, ok bool) {
	actorID, ok = contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
		return 0, 0, false
	}
	entityID, err := strconv.ParseInt(mux.Vars(r)[h.param], 10, 64)
	if err != nil {
		httputil.WriteAppError(w, r, apperr.Newf(apperr.Invalid, "invalid %s id", h.kind))
		return 0, 0, false
	}
	return actorID, entityID, true
}

// Add handles POST .../members
func (h *Handlers) Add(w http.ResponseWriter, r *http.Request, _ Role) {
	actorID, entityID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req AddMembersRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.AddMembers(r.Context(), h.kind, actorID, entityID, req.Members); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "Members added successfully."})
}

// Edit handles PATCH .../members
func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request, _ Role) {
	actorID, entityID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req AddMembersRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.EditMembers(r.Context(), h.kind, actorID, entityID, req.Members); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "Members updated successfully."})
}

// Remove handles DELETE .../members
func (h *Handlers) Remove(w http.ResponseWriter, r *http.Request, _ Role) {
	actorID, entityID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req RemoveMembersRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := h.service.RemoveMembers(r.Context(), h.kind, actorID, entityID, req.UserIDs); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "Members removed successfully."})
}

// Leave handles POST .../leave
func (h *Handlers) Leave(w http.ResponseWriter, r *http.Request, _ Role) {
	userID, entityID, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Leave(r.Context(), h.kind, userID, entityID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Message: "You've left this " + string(h.kind) + " successfully!"})
}
