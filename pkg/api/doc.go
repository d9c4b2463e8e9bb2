// Package api assembles the larder HTTP surface.
//
// NewRouter mounts every handler group on one gorilla/mux router:
//
//   - /auth/* login, callback, refresh and logout (no bearer token)
//   - /users/* the caller's account, user search and quotas
//   - /cookbooks/* cookbooks, their members and recipe links
//   - /recipes/* recipes, images, AI creation and members
//
// Everything except /auth requires a bearer access token. Entity routes are
// further guarded by authz.Guard inside their handler groups.
//
// The health and metrics endpoints are served by NewHealthServer on a
// separate port so probes bypass authentication and rate limits.
package api
