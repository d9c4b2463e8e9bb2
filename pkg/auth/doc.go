// Package auth turns identity-provider logins into larder sessions.
//
// A login redirects the browser to an sso.Provider with a single-use state
// nonce held in redis. The callback resolves or creates the local user and
// issues an HS256 token pair: a short-lived access token returned to the
// frontend and a refresh token stored in an HttpOnly cookie. Each refresh
// token's jti names a redis session, so logout revokes it server-side.
//
//	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
//	svc := auth.NewService(registry, userService, issuer,
//		auth.NewSessionStore(redis), auth.NewStateStore(redis))
//	auth.NewHandlers(svc, cfg.Auth.FrontendURL, cfg.Auth.SecureCookies).RegisterRoutes(router)
//
// Access tokens are verified by middleware.Authenticate using the same issuer.
package auth
