// Package sso implements the external identity providers used for login.
//
// Three protocol families are supported:
//
//   - OIDC (Google through GooglePreset, or any discoverable issuer)
//   - generic OAuth2 with a userinfo endpoint
//   - SAML 2.0, SP-initiated, POST binding
//
// Every provider turns a successful callback into a Profile carrying the
// verified email and display name. The auth package resolves or creates the
// local user from it and issues tokens; providers never touch the database.
//
// Providers are enabled by configuration:
//
//	LARDER_GOOGLE_CLIENT_ID / LARDER_GOOGLE_CLIENT_SECRET
//	LARDER_OAUTH2_CLIENT_ID / ..._AUTH_URL / ..._TOKEN_URL / ..._USERINFO_URL
//	LARDER_SAML_IDP_SSO_URL / ..._IDP_ISSUER / ..._IDP_CERTIFICATE
package sso
