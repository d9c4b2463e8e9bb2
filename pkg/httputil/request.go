package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/larder/pkg/apperr"
)

const (
	// DefaultPageSize is used when a list request carries no limit
	DefaultPageSize = 15
	// MaxPageSize caps the limit a client may request
	MaxPageSize = 100
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.Wrap(apperr.Invalid, "invalid JSON body", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, apperr.Message(err))
		return false
	}
	return true
}

// ParsePathInt64 extracts and parses an int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, apperr.Newf(apperr.Invalid, "missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, apperr.Newf(apperr.Invalid, "invalid id for %s: %s", key, str)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes error on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteBadRequest(w, apperr.Message(err))
		return 0, false
	}
	return val, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.Newf(apperr.Invalid, "invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryInt64 extracts an optional int64 query parameter; zero means absent
func ParseQueryInt64(r *http.Request, key string) (int64, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return 0, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.Invalid, "invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString extracts a trimmed string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// Page is a zero-based page request
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return p.Page * p.Limit
}

// ParsePage reads page and limit query parameters. Limits above MaxPageSize
// are clamped; negative values are rejected.
func ParsePage(r *http.Request, defaultLimit int) (Page, error) {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	page, err := ParseQueryInt(r, "page", 0)
	if err != nil {
		return Page{}, err
	}
	limit, err := ParseQueryInt(r, "limit", defaultLimit)
	if err != nil {
		return Page{}, err
	}
	if page < 0 || limit < 0 {
		return Page{}, apperr.New(apperr.Invalid, "page and limit must not be negative")
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Page: page, Limit: limit}, nil
}

// ParseSelection reads a comma separated field list. Unknown fields are
// rejected; an empty selection returns nil.
func ParseSelection(r *http.Request, allowed map[string]bool) (map[string]bool, error) {
	raw := ParseQueryString(r, "selection", "")
	if raw == "" {
		return nil, nil
	}
	selection := make(map[string]bool)
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if !allowed[field] {
			return nil, apperr.New(apperr.Invalid, fmt.Sprintf("unknown selection field: %s", field))
		}
		selection[field] = true
	}
	return selection, nil
}
