package etag

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, method, inm string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/main.bundle.js", nil)
	if inm != "" {
		req.Header.Set("If-None-Match", inm)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func body(s string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(s))
	})
}

func TestAutoSetsWeakETag(t *testing.T) {
	h := Auto(nil)(body("console.log(1);"))

	rec := serve(h, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	assert.True(t, strings.HasPrefix(tag, `W/"`), tag)
	assert.Equal(t, "console.log(1);", rec.Body.String())
	assert.Equal(t, "15", rec.Header().Get("Content-Length"))

	again := serve(h, http.MethodGet, "")
	assert.Equal(t, tag, again.Header().Get("ETag"), "stable for equal bodies")

	other := serve(Auto(nil)(body("console.log(2);")), http.MethodGet, "")
	assert.NotEqual(t, tag, other.Header().Get("ETag"))
}

func TestAutoNotModified(t *testing.T) {
	h := Auto(&Config{Strong: true})(body("<html></html>"))
	tag := serve(h, http.MethodGet, "").Header().Get("ETag")
	require.False(t, strings.HasPrefix(tag, "W/"))

	rec := serve(h, http.MethodGet, `"other", `+tag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = serve(h, http.MethodGet, "W/"+tag)
	assert.Equal(t, http.StatusNotModified, rec.Code, "If-None-Match uses weak comparison")

	rec = serve(h, http.MethodGet, `"stale"`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAutoSkips(t *testing.T) {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "404 page not found", http.StatusNotFound)
	})
	rec := serve(Auto(nil)(notFound), http.MethodGet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Body.String(), "not found")

	rec = serve(Auto(nil)(body("x")), http.MethodPost, "")
	assert.Empty(t, rec.Header().Get("ETag"))

	skip := &Config{SkipFunc: func(r *http.Request) bool { return true }}
	rec = serve(Auto(skip)(body("x")), http.MethodGet, "")
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Equal(t, "x", rec.Body.String())
}

func TestAutoLargeBodyPassesThrough(t *testing.T) {
	large := strings.Repeat("a", 64)
	rec := serve(Auto(&Config{MaxBodySize: 16})(body(large)), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Equal(t, large, rec.Body.String())
}
