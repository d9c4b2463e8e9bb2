package sso

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOAuth2Server(t *testing.T, userInfo map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func oauth2Config(base string) *ProviderConfig {
	return &ProviderConfig{
		Name: ProviderOAuth2,
		Type: ProviderTypeOAuth2,
		OAuth2Config: &OAuth2Config{
			ClientID:     "client",
			ClientSecret: "secret",
			AuthURL:      base + "/authorize",
			TokenURL:     base + "/token",
			UserInfoURL:  base + "/userinfo",
			RedirectURL:  "https://api.example.com/auth/oauth2/callback",
			Scopes:       []string{"openid", "email"},
		},
	}
}

func TestOAuth2Provider_ValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*OAuth2Config)
		errorMsg string
	}{
		{"valid", func(*OAuth2Config) {}, ""},
		{"missing client_id", func(c *OAuth2Config) { c.ClientID = "" }, "client_id is required"},
		{"missing client_secret", func(c *OAuth2Config) { c.ClientSecret = "" }, "client_secret is required"},
		{"missing auth_url", func(c *OAuth2Config) { c.AuthURL = "" }, "auth_url is required"},
		{"missing token_url", func(c *OAuth2Config) { c.TokenURL = "" }, "token_url is required"},
		{"missing user_info_url", func(c *OAuth2Config) { c.UserInfoURL = "" }, "user_info_url is required"},
		{"missing redirect_url", func(c *OAuth2Config) { c.RedirectURL = "" }, "redirect_url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := oauth2Config("https://idp.example.com")
			tt.mutate(cfg.OAuth2Config)
			_, err := NewOAuth2Provider(cfg)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestOAuth2Provider_LoginURL(t *testing.T) {
	p, err := NewOAuth2Provider(oauth2Config("https://idp.example.com"))
	require.NoError(t, err)

	loginURL, err := p.LoginURL("state-1")
	require.NoError(t, err)
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestOAuth2Provider_HandleCallback(t *testing.T) {
	srv := newFakeOAuth2Server(t, map[string]interface{}{
		"sub":         "ext-42",
		"email":       "Cook@Example.com",
		"given_name":  "Julia",
		"family_name": "Child",
		"picture":     "https://img.example.com/j.png",
		"groups":      []string{"chefs"},
	})
	p, err := NewOAuth2Provider(oauth2Config(srv.URL))
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/oauth2/callback?code=good-code&state=s", nil)
		profile, err := p.HandleCallback(r)
		require.NoError(t, err)
		assert.Equal(t, "ext-42", profile.ExternalID)
		assert.Equal(t, "cook@example.com", profile.Email)
		assert.Equal(t, "Julia Child", profile.FullName)
		assert.Equal(t, "https://img.example.com/j.png", profile.AvatarURL)
		assert.Equal(t, ProviderOAuth2, profile.Provider)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := p.HandleCallback(httptest.NewRequest(http.MethodGet, "/cb", nil))
		assert.ErrorContains(t, err, "missing authorization code")
	})

	t.Run("rejected code", func(t *testing.T) {
		_, err := p.HandleCallback(httptest.NewRequest(http.MethodGet, "/cb?code=bad", nil))
		assert.ErrorContains(t, err, "failed to exchange token")
	})
}

func TestOAuth2Provider_HandleCallbackWithoutEmail(t *testing.T) {
	srv := newFakeOAuth2Server(t, map[string]interface{}{"sub": "x"})
	p, err := NewOAuth2Provider(oauth2Config(srv.URL))
	require.NoError(t, err)

	_, err = p.HandleCallback(httptest.NewRequest(http.MethodGet, "/cb?code=good-code", nil))
	assert.ErrorContains(t, err, "missing email")
}
