package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OpenID Connect login. Google is configured
// through GooglePreset.
type OIDCProvider struct {
	config       *ProviderConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and builds the token verifier
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if config.OIDCConfig == nil {
		return nil, fmt.Errorf("OIDC config is required")
	}
	if err := validateOIDC(config.OIDCConfig); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, config.OIDCConfig.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.OIDCConfig.ClientID,
		SkipIssuerCheck: config.OIDCConfig.SkipIssuerCheck,
	})

	return &OIDCProvider{
		config:   config,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     config.OIDCConfig.ClientID,
			ClientSecret: config.OIDCConfig.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.OIDCConfig.RedirectURL,
			Scopes:       config.OIDCConfig.Scopes,
		},
	}, nil
}

func (p *OIDCProvider) Name() string { return p.config.Name }

func (p *OIDCProvider) Type() ProviderType { return ProviderTypeOIDC }

// LoginURL returns the authorization endpoint URL
func (p *OIDCProvider) LoginURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// HandleCallback exchanges the code and verifies the returned ID token
func (p *OIDCProvider) HandleCallback(r *http.Request) (*Profile, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx := r.Context()
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	profile := &Profile{Provider: p.config.Name, Attributes: make(map[string]string)}
	for k, v := range claims {
		if str, ok := v.(string); ok {
			profile.Attributes[k] = str
		}
	}
	p.config.AttributeMapping.orDefault().apply(profile, claims)
	if profile.ExternalID == "" {
		profile.ExternalID = idToken.Subject
	}
	profile.normalize()

	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("email %s is not verified", profile.Email)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("missing email in OIDC token")
	}
	return profile, nil
}

func validateOIDC(cfg *OIDCConfig) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}

	for _, scope := range cfg.Scopes {
		if scope == oidc.ScopeOpenID {
			return nil
		}
	}
	return fmt.Errorf("'openid' scope is required for OIDC")
}
