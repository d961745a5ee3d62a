package adgate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	toggle := NewToggle(store, quietLogger())
	h := &Handler{
		Download: NewMultiClick(store, toggle, "https://ads.example/x", quietLogger()),
		Watch:    NewSingleClick(store, toggle, "https://ads.example/x", quietLogger()),
		Toggle:   toggle,
		Log:      quietLogger(),
	}
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	h.RegisterAdmin(r.Group("/admin"))
	return r, h
}

type stepResponse struct {
	Count    int    `json:"count"`
	AdOpened bool   `json:"ad_opened"`
	Continue bool   `json:"continue"`
	AdURL    string `json:"ad_url"`
	Next     string `json:"next"`
}

func post(t *testing.T, r http.Handler, path string, cookie *http.Cookie) (stepResponse, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body stepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body, w
}

func visitorCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == VisitorCookie {
			return c
		}
	}
	t.Fatal("visitor cookie not issued")
	return nil
}

func TestDownloadStepOneFlow(t *testing.T) {
	r, _ := newTestHandler()

	first, w := post(t, r, "/api/download/603/step1", nil)
	cookie := visitorCookie(t, w)
	assert.True(t, first.AdOpened)
	assert.Equal(t, "https://ads.example/x", first.AdURL)
	assert.Empty(t, first.Next)

	second, _ := post(t, r, "/api/download/603/step1", cookie)
	assert.True(t, second.AdOpened)
	assert.Equal(t, 2, second.Count)

	third, _ := post(t, r, "/api/download/603/step1", cookie)
	assert.False(t, third.AdOpened)
	assert.True(t, third.Continue)
	assert.Equal(t, "/download/603/final", third.Next)
}

func TestDownloadStepTwoContinuesWithAd(t *testing.T) {
	r, _ := newTestHandler()

	first, w := post(t, r, "/api/download/603/step2", nil)
	assert.True(t, first.AdOpened)
	assert.Equal(t, "/watch/603", first.Next)

	second, _ := post(t, r, "/api/download/603/step2", visitorCookie(t, w))
	assert.False(t, second.AdOpened)
	assert.Equal(t, "/watch/603", second.Next)
}

func TestAdminToggleBypassesFunnel(t *testing.T) {
	r, h := newTestHandler()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/settings/ads", strings.NewReader(`{"enabled":false}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ads_enabled":false,"persisted":true}`, w.Body.String())
	assert.False(t, h.Toggle.Enabled())

	body, _ := post(t, r, "/api/download/603/step1", nil)
	assert.False(t, body.AdOpened)
	assert.Equal(t, "/download/603/final", body.Next)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/settings/ads", nil))
	assert.JSONEq(t, `{"ads_enabled":false}`, w.Body.String())
}

func TestAdminToggleRequiresBool(t *testing.T) {
	r, _ := newTestHandler()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/settings/ads", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
