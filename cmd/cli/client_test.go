package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickKeepsVisitorCookie(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("cg_visitor")
		if err != nil {
			http.SetCookie(w, &http.Cookie{Name: "cg_visitor", Value: "v-1", Path: "/"})
			seen = append(seen, "")
		} else {
			seen = append(seen, ck.Value)
		}
		_ = json.NewEncoder(w).Encode(stepResponse{ContentID: "c1", Count: len(seen), AdOpened: true})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	for i := 0; i < 2; i++ {
		out, err := c.click(context.Background(), "c1", "step1")
		require.NoError(t, err)
		assert.Equal(t, i+1, out.Count)
	}
	assert.Equal(t, []string{"", "v-1"}, seen)
}

func TestDoJSONSendsBearerAndSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
			return
		}
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"total":1,"limit":5,"offset":0,"items":[{"id":"a","title":"Heat","content_type":"movie"}]}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL)
	_, err := c.pending(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	c.token = "tok"
	resp, err := c.pending(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Heat", resp.Items[0].Title)
}

func TestTokenFileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.Error(t, saveToken(path, tokenData{}))
	require.NoError(t, saveToken(path, tokenData{Token: "abc", ExpiresAt: now.Add(time.Hour)}))

	tok, err := readToken(path, now)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = readToken(path, now.Add(2*time.Hour))
	assert.ErrorContains(t, err, "expired")

	require.NoError(t, clearToken(path))
	require.NoError(t, clearToken(path))
	_, err = readToken(path, now)
	assert.Error(t, err)
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://cine.example:8443/base", "/ws")
	require.NoError(t, err)
	assert.Equal(t, "wss://cine.example:8443/ws", got)

	got, err = websocketURL("http://localhost:8080", "/ws")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", got)
}

func TestDescribeStep(t *testing.T) {
	assert.Equal(t, "click 1: ad https://ads.example", describeStep(stepResponse{Count: 1, AdOpened: true, AdURL: "https://ads.example"}))
	assert.Equal(t, "click 3: continue to /watch/x", describeStep(stepResponse{Count: 3, Continue: true, Next: "/watch/x"}))
	assert.Equal(t, "click 2: ad a, then /watch/x", describeStep(stepResponse{Count: 2, AdOpened: true, AdURL: "a", Continue: true, Next: "/watch/x"}))
}

func TestBrowseEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/catalog", r.URL.Path)
		assert.Equal(t, "the wire", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"items":[],"page":1,"page_size":24,"total_items":0,"total_pages":1}`))
	}))
	defer srv.Close()

	resp, err := newAPIClient(srv.URL).browse(context.Background(), url.Values{"q": {"the wire"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalPages)
}
