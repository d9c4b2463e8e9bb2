package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/cookbooks"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/quota"
	"github.com/platinummonkey/larder/pkg/recipes"
	"github.com/platinummonkey/larder/pkg/users"
)

// multipartSlack is the body allowance on top of the image limit for
// multipart framing and JSON bodies
const multipartSlack = 1 << 20

// Dependencies are the services exposed over HTTP
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Auth      *auth.Service
	Users     *users.Service
	Members   *membership.Service
	Guard     *authz.Guard
	Cookbooks *cookbooks.Service
	Recipes   *recipes.Service
	Quotas    *quota.Service

	// RateLimiter is optional; nil disables rate limiting
	RateLimiter *middleware.DistributedRateLimiter

	FrontendURL    string
	SecureCookies  bool
	AllowedOrigins []string
	MaxUploadBytes int64
	PageSize       int
}

// RouteRegistrar is implemented by every handler group
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// NewRouter builds the API router with its middleware chain
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})

	router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(deps.AllowedOrigins),
		httputil.MaxBytesMiddleware(deps.MaxUploadBytes+multipartSlack),
	)
	if deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	// Subrouters without matchers fall through to the next one when none
	// of their routes match.
	public := router.NewRoute().Subrouter()
	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthMiddleware(deps.Auth.Tokens()).Handler)
	if deps.RateLimiter != nil {
		limit := middleware.NewRateLimitMiddleware(deps.RateLimiter).Handler
		public.Use(limit)
		protected.Use(limit)
	}

	register(public, auth.NewHandlers(deps.Auth, deps.FrontendURL, deps.SecureCookies))
	register(protected,
		users.NewHandlers(deps.Users),
		quota.NewHandlers(deps.Quotas),
		cookbooks.NewHandlers(deps.Cookbooks, deps.Members, deps.Guard, deps.PageSize),
		recipes.NewHandlers(deps.Recipes, deps.Members, deps.Guard, deps.MaxUploadBytes, deps.PageSize),
	)
	return router
}

func register(router *mux.Router, registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(router)
	}
}
