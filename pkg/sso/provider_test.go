package sso

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/config"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string                                   { return s.name }
func (s stubProvider) Type() ProviderType                             { return ProviderTypeOAuth2 }
func (s stubProvider) LoginURL(string) (string, error)                { return "", nil }
func (s stubProvider) HandleCallback(*http.Request) (*Profile, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubProvider{name: "saml"})
	reg.Register(stubProvider{name: "google"})

	_, ok := reg.Get("google")
	assert.True(t, ok)
	_, ok = reg.Get("github")
	assert.False(t, ok)
	assert.Equal(t, []string{"google", "saml"}, reg.Names())
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg, err := NewRegistryFromConfig(context.Background(), config.AuthConfig{
		CallbackBaseURL:    "https://api.example.com/",
		OAuth2ClientID:     "client",
		OAuth2ClientSecret: "secret",
		OAuth2AuthURL:      "https://idp.example.com/authorize",
		OAuth2TokenURL:     "https://idp.example.com/token",
		OAuth2UserInfoURL:  "https://idp.example.com/userinfo",
		SAMLIDPSSOURL:      "https://idp.example.com/sso",
		SAMLIDPIssuer:      "https://idp.example.com",
		SAMLIDPCertificate: testCertificate,
		SAMLEntityID:       "larder",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"oauth2", "saml"}, reg.Names())

	p, _ := reg.Get("oauth2")
	op := p.(*OAuth2Provider)
	assert.Equal(t, "https://api.example.com/auth/oauth2/callback", op.oauth2Config.RedirectURL)
}

func TestNewRegistryFromConfigEmpty(t *testing.T) {
	reg, err := NewRegistryFromConfig(context.Background(), config.AuthConfig{})
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}

func TestGooglePreset(t *testing.T) {
	cfg := GooglePreset("id", "secret", "https://cb")
	assert.Equal(t, ProviderGoogle, cfg.Name)
	assert.Equal(t, ProviderTypeOIDC, cfg.Type)
	assert.Equal(t, "https://accounts.google.com", cfg.OIDCConfig.IssuerURL)
	assert.Equal(t, DefaultAttributeMap, cfg.AttributeMapping)
}

func TestProfileNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Profile
		want Profile
	}{
		{
			"full name from parts",
			Profile{Email: " A@B.COM ", FirstName: "Ada", LastName: "L"},
			Profile{Email: "a@b.com", FirstName: "Ada", LastName: "L", FullName: "Ada L"},
		},
		{
			"parts from full name",
			Profile{Email: "a@b.com", FullName: "Grace Brewster Hopper"},
			Profile{Email: "a@b.com", FirstName: "Grace", LastName: "Brewster Hopper", FullName: "Grace Brewster Hopper"},
		},
		{
			"email fallback",
			Profile{Email: "a@b.com"},
			Profile{Email: "a@b.com", FullName: "a@b.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.normalize()
			assert.Equal(t, tt.want, p)
		})
	}
}
