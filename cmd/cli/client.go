package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cinegate/pkg/models"
)

type tokenData struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type browseResponse struct {
	Items      []models.ContentRecord `json:"items"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalItems int                    `json:"total_items"`
	TotalPages int                    `json:"total_pages"`
}

type contentListResponse struct {
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Items  []models.ContentRecord `json:"items"`
}

type stepResponse struct {
	ContentID string `json:"content_id"`
	Funnel    string `json:"funnel"`
	Count     int    `json:"count"`
	AdOpened  bool   `json:"ad_opened"`
	Continue  bool   `json:"continue"`
	AdURL     string `json:"ad_url,omitempty"`
	Next      string `json:"next,omitempty"`
}

// apiClient talks to the api-server. The cookie jar keeps the visitor cookie
// across calls in one invocation, so repeated clicks land in the same funnel.
type apiClient struct {
	base  string
	http  *http.Client
	token string
}

func newAPIClient(base string) *apiClient {
	jar, _ := cookiejar.New(nil)
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second, Jar: jar},
	}
}

func (c *apiClient) browse(ctx context.Context, params url.Values) (*browseResponse, error) {
	var out browseResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/catalog?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) login(ctx context.Context, password string) (tokenData, error) {
	var out tokenData
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{"password": password}, &out)
	return out, err
}

func (c *apiClient) pending(ctx context.Context, limit int) (*contentListResponse, error) {
	q := url.Values{}
	q.Set("status", models.StatusPending)
	q.Set("limit", fmt.Sprintf("%d", limit))
	var out contentListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/admin/content?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) setAds(ctx context.Context, enabled bool) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodPut, "/admin/settings/ads", map[string]bool{"enabled": enabled}, &out)
	return out, err
}

// click posts one step of the download funnel.
func (c *apiClient) click(ctx context.Context, contentID, step string) (stepResponse, error) {
	var out stepResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/download/"+url.PathEscape(contentID)+"/"+step, nil, &out)
	return out, err
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.cinegate-token.json"
	}
	return filepath.Join(home, ".cinegate", "token.json")
}

func saveToken(path string, td tokenData) error {
	if td.Token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// readToken returns the stored token, rejecting one that has already expired.
func readToken(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	if strings.TrimSpace(td.Token) == "" {
		return "", errors.New("token empty")
	}
	if !td.ExpiresAt.IsZero() && now.After(td.ExpiresAt) {
		return "", errors.New("token expired")
	}
	return strings.TrimSpace(td.Token), nil
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}
