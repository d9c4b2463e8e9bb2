package sso

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Provider implements a generic OAuth2 authorization-code login that
// reads the profile from a userinfo endpoint
type OAuth2Provider struct {
	config       *ProviderConfig
	oauth2Config *oauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(config *ProviderConfig) (*OAuth2Provider, error) {
	if config.OAuth2Config == nil {
		return nil, fmt.Errorf("OAuth2 config is required")
	}
	p := &OAuth2Provider{
		config: config,
		oauth2Config: &oauth2.Config{
			ClientID:     config.OAuth2Config.ClientID,
			ClientSecret: config.OAuth2Config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.OAuth2Config.AuthURL,
				TokenURL: config.OAuth2Config.TokenURL,
			},
			RedirectURL: config.OAuth2Config.RedirectURL,
			Scopes:      config.OAuth2Config.Scopes,
		},
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *OAuth2Provider) Name() string { return p.config.Name }

func (p *OAuth2Provider) Type() ProviderType { return ProviderTypeOAuth2 }

// LoginURL returns the authorization endpoint URL
func (p *OAuth2Provider) LoginURL(state string) (string, error) {
	return p.oauth2Config.AuthCodeURL(state), nil
}

// HandleCallback exchanges the code and fetches the userinfo document
func (p *OAuth2Provider) HandleCallback(r *http.Request) (*Profile, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx := r.Context()
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	resp, err := p.oauth2Config.Client(ctx, token).Get(p.config.OAuth2Config.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	profile := &Profile{Provider: p.config.Name, Attributes: make(map[string]string)}
	for k, v := range userInfo {
		if str, ok := v.(string); ok {
			profile.Attributes[k] = str
		}
	}
	p.config.AttributeMapping.orDefault().apply(profile, userInfo)
	profile.normalize()

	if profile.Email == "" {
		return nil, fmt.Errorf("missing email in OAuth2 response")
	}
	if profile.ExternalID == "" {
		profile.ExternalID = profile.Email
	}
	return profile, nil
}

// ValidateConfig validates the OAuth2 configuration
func (p *OAuth2Provider) ValidateConfig() error {
	cfg := p.config.OAuth2Config

	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	if cfg.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if cfg.UserInfoURL == "" {
		return fmt.Errorf("user_info_url is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	return nil
}
