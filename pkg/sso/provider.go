package sso

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/platinummonkey/larder/pkg/config"
)

// Provider is an external identity provider
type Provider interface {
	// Name is the route segment, e.g. "google"
	Name() string

	// Type returns the protocol family
	Type() ProviderType

	// LoginURL returns the IdP URL the browser is redirected to
	LoginURL(state string) (string, error)

	// HandleCallback verifies the IdP response and returns the profile
	HandleCallback(r *http.Request) (*Profile, error)
}

// Registry holds the providers enabled by configuration
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get looks up a provider by route name
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// callbackURL is the redirect URI registered with the IdP for provider name
func callbackURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/auth/" + name + "/callback"
}

// NewRegistryFromConfig builds every provider whose credentials are present.
// OIDC providers perform discovery, so ctx bounds the startup round-trips.
func NewRegistryFromConfig(ctx context.Context, cfg config.AuthConfig) (*Registry, error) {
	reg := NewRegistry()

	if cfg.GoogleClientID != "" {
		pc := GooglePreset(cfg.GoogleClientID, cfg.GoogleClientSecret, callbackURL(cfg.CallbackBaseURL, ProviderGoogle))
		p, err := NewOIDCProvider(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		reg.Register(p)
	}

	if cfg.OAuth2ClientID != "" {
		p, err := NewOAuth2Provider(&ProviderConfig{
			Name: ProviderOAuth2,
			Type: ProviderTypeOAuth2,
			OAuth2Config: &OAuth2Config{
				ClientID:     cfg.OAuth2ClientID,
				ClientSecret: cfg.OAuth2ClientSecret,
				AuthURL:      cfg.OAuth2AuthURL,
				TokenURL:     cfg.OAuth2TokenURL,
				UserInfoURL:  cfg.OAuth2UserInfoURL,
				RedirectURL:  callbackURL(cfg.CallbackBaseURL, ProviderOAuth2),
				Scopes:       []string{"openid", "profile", "email"},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("oauth2: %w", err)
		}
		reg.Register(p)
	}

	if cfg.SAMLIDPSSOURL != "" {
		p, err := NewSAMLProvider(&ProviderConfig{
			Name: ProviderSAML,
			Type: ProviderTypeSAML,
			SAMLConfig: &SAMLConfig{
				IDPIssuer:   cfg.SAMLIDPIssuer,
				IDPSSOURL:   cfg.SAMLIDPSSOURL,
				Certificate: cfg.SAMLIDPCertificate,
				EntityID:    cfg.SAMLEntityID,
				ACSURL:      callbackURL(cfg.CallbackBaseURL, ProviderSAML),
			},
			AttributeMapping: AttributeMap{
				Email:     "email",
				FullName:  "displayName",
				FirstName: "givenName",
				LastName:  "sn",
			},
		})
		if err != nil {
			return nil, fmt.Errorf("saml: %w", err)
		}
		reg.Register(p)
	}

	return reg, nil
}

// GooglePreset returns the OIDC configuration for Google accounts
func GooglePreset(clientID, clientSecret, redirectURL string) *ProviderConfig {
	return &ProviderConfig{
		Name:             ProviderGoogle,
		Type:             ProviderTypeOIDC,
		AttributeMapping: DefaultAttributeMap,
		OIDCConfig: &OIDCConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			IssuerURL:    "https://accounts.google.com",
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "profile", "email"},
		},
	}
}
