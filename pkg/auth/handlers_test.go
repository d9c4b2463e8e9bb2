package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/sso"
	"github.com/platinummonkey/larder/pkg/users"
)

type fakeProvider struct {
	name    string
	profile *sso.Profile
	err     error
}

func (p *fakeProvider) Name() string           { return p.name }
func (p *fakeProvider) Type() sso.ProviderType { return sso.ProviderOAuth2 }

func (p *fakeProvider) LoginURL(state string) (string, error) {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (p *fakeProvider) HandleCallback(*http.Request) (*sso.Profile, error) {
	return p.profile, p.err
}

type fakeResolver struct {
	calls int
}

func (f *fakeResolver) ResolveOrCreate(_ context.Context, profile *sso.Profile) (*users.User, error) {
	f.calls++
	return &users.User{ID: 11, Email: profile.Email}, nil
}

type authFixture struct {
	router   *mux.Router
	service  *Service
	provider *fakeProvider
	resolver *fakeResolver
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	redis, _ := newTestRedis(t)

	provider := &fakeProvider{name: "google", profile: &sso.Profile{Email: "cook@example.com"}}
	registry := sso.NewRegistry()
	registry.Register(provider)
	resolver := &fakeResolver{}

	service := NewService(registry, resolver, newTestIssuer(), NewSessionStore(redis), NewStateStore(redis))
	router := mux.NewRouter()
	NewHandlers(service, "https://app.example.com/", false).RegisterRoutes(router)
	return &authFixture{router: router, service: service, provider: provider, resolver: resolver}
}

func (f *authFixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

// login runs the full redirect/callback flow and returns the callback response
func (f *authFixture) login(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	return f.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil))
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == RefreshCookie {
			return c
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestLoginFlow(t *testing.T) {
	f := newAuthFixture(t)
	w := f.login(t)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "/oauth-redirect", loc.Path)

	claims, err := f.service.Tokens().Parse(loc.Query().Get("token"), TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "11", claims.Subject)

	cookie := refreshCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 1, f.resolver.calls)
}

func TestCallbackRejects(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		f := newAuthFixture(t)
		w := f.do(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing state", func(t *testing.T) {
		f := newAuthFixture(t)
		w := f.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, f.resolver.calls)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newAuthFixture(t)
		f.provider.err = errors.New("bad code")
		w := f.login(t)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, f.resolver.calls)
	})
}

func TestCallbackRelayState(t *testing.T) {
	f := newAuthFixture(t)
	state, err := f.service.states.Issue(t.Context(), "google")
	require.NoError(t, err)

	form := url.Values{"SAMLResponse": {"x"}, "RelayState": {state}}
	r := httptest.NewRequest(http.MethodPost, "/auth/google/callback", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := f.do(r)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)
	cookie := refreshCookie(t, f.login(t))

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
		r.AddCookie(cookie)
		w := f.do(r)
		require.Equal(t, http.StatusOK, w.Code)

		var body refreshResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		_, err := f.service.Tokens().Parse(body.AccessToken, TokenTypeAccess)
		assert.NoError(t, err)
	})

	t.Run("bearer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
		r.Header.Set("Authorization", "Bearer "+cookie.Value)
		assert.Equal(t, http.StatusOK, f.do(r).Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := f.do(httptest.NewRequest(http.MethodGet, "/auth/refresh", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
		r.Header.Set("Authorization", "Bearer "+cookie.Value+"x")
		assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
	})
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	cookie := refreshCookie(t, f.login(t))

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(cookie)
	w := f.do(r)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "", refreshCookie(t, w).Value)

	r = httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
	r.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)

	// logging out twice is harmless
	r = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(cookie)
	assert.Equal(t, http.StatusNoContent, f.do(r).Code)
}

func TestRevokeAll(t *testing.T) {
	f := newAuthFixture(t)
	first := refreshCookie(t, f.login(t))
	second := refreshCookie(t, f.login(t))

	require.NoError(t, f.service.RevokeAll(t.Context(), 11))
	for _, c := range []*http.Cookie{first, second} {
		r := httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)
		r.AddCookie(c)
		assert.Equal(t, http.StatusUnauthorized, f.do(r).Code)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", BearerToken(r))
	r.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", BearerToken(r))
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", BearerToken(r))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", getClientIP(r))
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", getClientIP(r))
}
