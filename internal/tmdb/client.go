// Package tmdb is the remote metadata gateway. It talks to TMDB v3 and
// normalizes movie and TV payloads into models.ContentRecord.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"cinegate/pkg/metrics"
	"cinegate/pkg/models"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p"
	posterSize          = "w500"
)

var (
	ErrNotConfigured = errors.New("tmdb api key not configured")
	ErrNotFound      = errors.New("tmdb: not found")
)

type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// ResultPage is one upstream page of normalized records.
type ResultPage struct {
	Items      []models.ContentRecord
	Page       int
	TotalPages int
	Dropped    int
}

type Client struct {
	apiKey       string
	language     string
	baseURL      string
	imageBaseURL string
	httpc        *http.Client
	log          *logrus.Entry

	attempts uint
	backoff  time.Duration

	genresMu sync.RWMutex
	genres   []models.Genre
	names    map[string]string
}

type Options struct {
	APIKey   string
	Language string
	BaseURL  string
	HTTP     *http.Client
	Logger   *logrus.Entry
}

func New(opts Options) *Client {
	httpc := opts.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 12 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = "en-US"
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		language:     lang,
		baseURL:      base,
		imageBaseURL: defaultImageBaseURL,
		httpc:        httpc,
		log:          log.WithField("component", "tmdb"),
		attempts:     3,
		backoff:      300 * time.Millisecond,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return "tmdb request failed: " + e.status }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// get performs a GET against the API with retry on network errors, 429 and 5xx.
func (c *Client) get(ctx context.Context, params url.Values, v any, segments ...string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	endpoint, err := url.JoinPath(c.baseURL, segments...)
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)
	endpoint += "?" + params.Encode()

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(ErrNotFound)
			}
			if resp.StatusCode >= 400 {
				return &statusError{code: resp.StatusCode, status: resp.Status}
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("tmdb decode: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithError(err).WithField("attempt", n+1).Warn("tmdb request retry")
		}),
	)
}

type listResponse struct {
	Page       int      `json:"page"`
	Results    []Result `json:"results"`
	TotalPages int      `json:"total_pages"`
}

func (c *Client) list(ctx context.Context, fallback Kind, params url.Values, segments ...string) (ResultPage, error) {
	var payload listResponse
	if err := c.get(ctx, params, &payload, segments...); err != nil {
		return ResultPage{}, err
	}

	names := c.genreNames()
	out := ResultPage{
		Items:      make([]models.ContentRecord, 0, len(payload.Results)),
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
	}
	for _, it := range payload.Results {
		rec, ok := c.normalize(it, fallback, names)
		if !ok {
			out.Dropped++
			continue
		}
		out.Items = append(out.Items, rec)
	}
	if out.Dropped > 0 {
		metrics.RecordsDropped.WithLabelValues("tmdb").Add(float64(out.Dropped))
		c.log.WithField("dropped", out.Dropped).Debug("dropped malformed tmdb results")
	}
	return out, nil
}

func pageParams(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": []string{strconv.Itoa(page)}}
}

// Popular lists movie/popular or tv/popular.
func (c *Client) Popular(ctx context.Context, kind Kind, page int) (ResultPage, error) {
	return c.list(ctx, kind, pageParams(page), string(kind), "popular")
}

func (c *Client) TopRated(ctx context.Context, kind Kind, page int) (ResultPage, error) {
	return c.list(ctx, kind, pageParams(page), string(kind), "top_rated")
}

// Discover lists titles of one kind tagged with the given TMDB genre id.
func (c *Client) Discover(ctx context.Context, kind Kind, genreID string, page int) (ResultPage, error) {
	params := pageParams(page)
	params.Set("sort_by", "popularity.desc")
	if g := strings.TrimSpace(genreID); g != "" {
		params.Set("with_genres", g)
	}
	return c.list(ctx, kind, params, "discover", string(kind))
}

// Search runs search/multi; person results are dropped during normalization.
func (c *Client) Search(ctx context.Context, query string, page int) (ResultPage, error) {
	params := pageParams(page)
	params.Set("query", strings.TrimSpace(query))
	params.Set("include_adult", "false")
	return c.list(ctx, "", params, "search", "multi")
}

// GenreEntry is a genre object as TMDB returns it.
type GenreEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type detailResponse struct {
	Result
	Genres []GenreEntry `json:"genres"`
}

// Details fetches a single movie or TV show by TMDB id.
func (c *Client) Details(ctx context.Context, kind Kind, id int64) (*models.ContentRecord, error) {
	var payload detailResponse
	if err := c.get(ctx, nil, &payload, string(kind), strconv.FormatInt(id, 10)); err != nil {
		return nil, err
	}

	// detail payloads carry genre objects instead of genre_ids
	names := make(map[string]string, len(payload.Genres))
	for _, g := range payload.Genres {
		gid := strconv.FormatInt(g.ID, 10)
		payload.GenreIDs = append(payload.GenreIDs, g.ID)
		names[gid] = g.Name
	}

	rec, ok := c.normalize(payload.Result, kind, names)
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

type genreListResponse struct {
	Genres []GenreEntry `json:"genres"`
}

// Genres returns the union of the movie and TV genre lists. The first
// successful fetch is kept for the life of the client.
func (c *Client) Genres(ctx context.Context) ([]models.Genre, error) {
	c.genresMu.RLock()
	if c.genres != nil {
		out := slices.Clone(c.genres)
		c.genresMu.RUnlock()
		return out, nil
	}
	c.genresMu.RUnlock()

	all := make([]models.Genre, 0)
	names := make(map[string]string)
	for _, kind := range []Kind{KindMovie, KindTV} {
		var payload genreListResponse
		if err := c.get(ctx, nil, &payload, "genre", string(kind), "list"); err != nil {
			return nil, fmt.Errorf("tmdb %s genres: %w", kind, err)
		}
		for _, g := range payload.Genres {
			gid := strconv.FormatInt(g.ID, 10)
			if _, seen := names[gid]; seen {
				continue
			}
			names[gid] = g.Name
			all = append(all, models.Genre{ID: gid, ExternalID: gid, Name: g.Name})
		}
	}

	c.genresMu.Lock()
	c.genres = all
	c.names = names
	c.genresMu.Unlock()

	return slices.Clone(all), nil
}

func (c *Client) genreNames() map[string]string {
	c.genresMu.RLock()
	defer c.genresMu.RUnlock()
	return c.names
}
