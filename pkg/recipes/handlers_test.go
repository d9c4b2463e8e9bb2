package recipes

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/contextkeys"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

func newRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(f.svc, f.members, authz.NewGuard(f.db, nil), 1<<20, 15).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path string, caller int64, body io.Reader, contentType string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if caller != 0 {
		r = r.WithContext(contextkeys.WithUserID(r.Context(), caller))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestRecipeRoutes(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	w := serve(router, "POST", "/recipes", f.owner, strings.NewReader(`{"title":"Dal","isPublic":true}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID       int64  `json:"id"`
		IsPublic bool   `json:"isPublic"`
		Role     string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.False(t, created.IsPublic)
	assert.Equal(t, "OWNER", created.Role)
	path := "/recipes/" + strconv.FormatInt(created.ID, 10)

	cookbook := sqltest.InsertCookbook(t, f.db, "Weeknights", f.owner)
	sqltest.LinkRecipe(t, f.db, cookbook, created.ID)

	tests := []struct {
		name   string
		method string
		path   string
		caller int64
		body   string
		status int
	}{
		{"owner reads", "GET", path, f.owner, "", http.StatusOK},
		{"stranger cannot read", "GET", path, f.other, "", http.StatusForbidden},
		{"unauthenticated", "GET", path, 0, "", http.StatusUnauthorized},
		{"missing recipe looks forbidden", "GET", "/recipes/9999", f.owner, "", http.StatusForbidden},
		{"owner updates", "PATCH", path, f.owner, `{"cuisine":"Indian"}`, http.StatusOK},
		{"list mine", "GET", "/recipes/mine?title=da", f.owner, "", http.StatusOK},
		{"bad page", "GET", "/recipes/mine?page=-1", f.owner, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.caller, strings.NewReader(tt.body), "application/json")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	// cookbook membership grants read access only
	sqltest.Grant(t, f.db, "users_on_cookbooks", f.other, cookbook, "EDITOR")
	w = serve(router, "GET", path, f.other, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&detail))
	assert.Equal(t, "VIEWER", detail["role"])
	assert.Equal(t, "Indian", detail["cuisine"])

	w = serve(router, "PATCH", path, f.other, strings.NewReader(`{"title":"Mine now"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(router, "POST", path+"/members", f.owner,
		strings.NewReader(`{"members":[{"userId":`+strconv.FormatInt(f.other, 10)+`,"role":"EDITOR"}]}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(router, "PATCH", path, f.other, strings.NewReader(`{"title":"Shared dal"}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, "DELETE", path, f.other, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(router, "DELETE", path, f.owner, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "photo.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImageRoute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	d, err := f.svc.Create(t.Context(), f.owner, Content{Title: "Dal"})
	require.NoError(t, err)
	path := "/recipes/" + strconv.FormatInt(d.ID, 10) + "/image"

	body, ct := multipartImage(t, "img", pngBytes)
	w := serve(router, "POST", path, f.owner, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp imageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Data, "larder-private")

	tests := []struct {
		name   string
		field  string
		data   []byte
		caller int64
		status int
	}{
		{"not an image", "img", []byte("just some text"), f.owner, http.StatusBadRequest},
		{"wrong field", "file", pngBytes, f.owner, http.StatusBadRequest},
		{"too large", "img", append(append([]byte{}, pngBytes...), make([]byte, 2<<20)...), f.owner, http.StatusBadRequest},
		{"stranger", "img", pngBytes, f.other, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartImage(t, tt.field, tt.data)
			w := serve(router, "POST", path, tt.caller, body, ct)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 1, f.mem.Len("larder-private"))
}

func TestCreateWithAIRoute(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	f.gen.payload = `{"title":"Soup"}`

	w := serve(router, "POST", "/recipes/ai", f.owner, strings.NewReader(`{"prompt":"soup"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(router, "POST", "/recipes/ai", f.owner, strings.NewReader(`{"prompt":"more soup"}`), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
