package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/observability"
)

// RefreshCookie is the HttpOnly cookie carrying the refresh token
const RefreshCookie = "refreshToken"

// Handlers serves the /auth routes
type Handlers struct {
	service       *Service
	audit         *AuditLogger
	frontendURL   string
	secureCookies bool
}

// NewHandlers creates auth handlers
func NewHandlers(service *Service, frontendURL string, secureCookies bool) *Handlers {
	return &Handlers{
		service:       service,
		audit:         NewAuditLogger(),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		secureCookies: secureCookies,
	}
}

// RegisterRoutes registers the unauthenticated auth routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/refresh", h.refresh).Methods("GET")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/{provider}/login", h.login).Methods("GET")
	router.HandleFunc("/auth/{provider}/callback", h.callback).Methods("GET", "POST")
}

// login handles GET /auth/{provider}/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.BeginLogin(r.Context(), mux.Vars(r)["provider"])
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callback handles GET|POST /auth/{provider}/callback. SAML posts the
// nonce as RelayState.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	state := r.FormValue("state")
	if state == "" {
		state = r.FormValue("RelayState")
	}

	pair, u, err := h.service.CompleteLogin(r.Context(), provider, state, r)
	if err != nil {
		h.audit.Log(r, AuditEvent{Action: ActionLoginFailure, Provider: provider, Err: err})
		httputil.WriteAppError(w, r, err)
		return
	}
	h.audit.Log(r, AuditEvent{Action: ActionLogin, Provider: provider, UserID: u.ID})

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	http.Redirect(w, r, h.frontendURL+"/oauth-redirect?token="+url.QueryEscape(pair.AccessToken), http.StatusFound)
}

type refreshResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// refresh handles GET /auth/refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	access, exp, claims, err := h.service.Refresh(r.Context(), refreshToken(r))
	if err != nil {
		event := AuditEvent{Action: ActionRefreshDenied, Err: err}
		if claims != nil {
			event.UserID, _ = claims.UserID()
		}
		h.audit.Log(r, event)
		httputil.WriteAppError(w, r, err)
		return
	}
	userID, _ := claims.UserID()
	h.audit.Log(r, AuditEvent{Action: ActionRefresh, UserID: userID})
	httputil.WriteSuccess(w, refreshResponse{AccessToken: access, AccessExpiresAt: exp})
}

// logout handles POST /auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	userID, err := h.service.Logout(r.Context(), refreshToken(r))
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to revoke session")
		httputil.WriteAppError(w, r, err)
		return
	}
	h.audit.Log(r, AuditEvent{Action: ActionLogout, UserID: userID})
	h.setRefreshCookie(w, "", time.Unix(0, 0))
	httputil.WriteNoContent(w)
}

func (h *Handlers) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// refreshToken reads the cookie first, then a bearer header
func refreshToken(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return BearerToken(r)
}

// BearerToken extracts the token from an Authorization: Bearer header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
