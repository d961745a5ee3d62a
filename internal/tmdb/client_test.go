package tmdb

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/pkg/logging"
	"cinegate/pkg/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(fn roundTripFunc) *Client {
	c := New(Options{
		APIKey: "test-key",
		HTTP:   &http.Client{Transport: fn},
		Logger: logging.Discard(),
	})
	c.backoff = time.Millisecond
	return c
}

func TestSearchNormalizesMixedShapes(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/3/search/multi", req.URL.Path)
		assert.Equal(t, "test-key", req.URL.Query().Get("api_key"))
		assert.Equal(t, "dune", req.URL.Query().Get("query"))
		return jsonResponse(http.StatusOK, `{
			"page": 1, "total_pages": 3,
			"results": [
				{"id": 438631, "media_type": "movie", "title": "Dune", "release_date": "2021-09-15",
				 "genre_ids": [878, 12], "vote_average": 7.8, "vote_count": 100, "poster_path": "/d5NXSklXo0qyIYkgV94XAgMIckC.jpg"},
				{"id": 90228, "media_type": "tv", "name": "Dune: Prophecy", "first_air_date": "2024-11-17", "genre_ids": [10765]},
				{"id": 1, "media_type": "person", "name": "Someone"},
				{"id": 0, "media_type": "movie", "title": "No id"},
				{"id": 7, "media_type": "movie"}
			]
		}`), nil
	})

	page, err := c.Search(context.Background(), " dune ", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.Dropped)
	require.Len(t, page.Items, 2)

	movie := page.Items[0]
	assert.Equal(t, "438631", movie.ID)
	assert.Equal(t, "Dune", movie.Title)
	assert.Equal(t, models.ContentMovie, movie.ContentType)
	assert.Equal(t, 2021, movie.Year())
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/d5NXSklXo0qyIYkgV94XAgMIckC.jpg", movie.PosterURL)
	require.NotNil(t, movie.Rating)
	assert.InDelta(t, 7.8, *movie.Rating, 0.001)
	assert.Equal(t, models.SourceRemote, movie.Source)
	require.Len(t, movie.Genres, 2)
	assert.Equal(t, "878", movie.Genres[0].ExternalID)

	show := page.Items[1]
	assert.Equal(t, "Dune: Prophecy", show.Title)
	assert.Equal(t, models.ContentSeries, show.ContentType)
	assert.Equal(t, 2024, show.ReleaseYear)
	assert.Nil(t, show.Rating)
}

func TestPopularUsesKindAsFallbackTag(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/3/tv/popular", req.URL.Path)
		assert.Equal(t, "2", req.URL.Query().Get("page"))
		return jsonResponse(http.StatusOK, `{"page":2,"total_pages":10,"results":[{"id":1399,"name":"Game of Thrones"}]}`), nil
	})

	page, err := c.Popular(context.Background(), KindTV, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, models.ContentSeries, page.Items[0].ContentType)
	assert.Equal(t, "Game of Thrones", page.Items[0].Title)
}

func TestGenresResolveNamesForLaterLists(t *testing.T) {
	var genreCalls atomic.Int32
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/3/genre/movie/list":
			genreCalls.Add(1)
			return jsonResponse(http.StatusOK, `{"genres":[{"id":28,"name":"Action"},{"id":16,"name":"Animation"}]}`), nil
		case "/3/genre/tv/list":
			genreCalls.Add(1)
			return jsonResponse(http.StatusOK, `{"genres":[{"id":16,"name":"Animation"},{"id":10765,"name":"Sci-Fi & Fantasy"}]}`), nil
		case "/3/discover/movie":
			assert.Equal(t, "28", req.URL.Query().Get("with_genres"))
			return jsonResponse(http.StatusOK, `{"page":1,"total_pages":1,"results":[{"id":5,"title":"Heat","genre_ids":[28]}]}`), nil
		}
		t.Fatalf("unexpected request %s", req.URL.Path)
		return nil, nil
	})

	genres, err := c.Genres(context.Background())
	require.NoError(t, err)
	assert.Len(t, genres, 3)

	_, err = c.Genres(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, genreCalls.Load())

	page, err := c.Discover(context.Background(), KindMovie, "28", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Action", page.Items[0].Genres[0].Name)
}

func TestEmptyGenreListsAreCached(t *testing.T) {
	var genreCalls atomic.Int32
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		if strings.HasPrefix(req.URL.Path, "/3/genre/") {
			genreCalls.Add(1)
			return jsonResponse(http.StatusOK, `{"genres":[]}`), nil
		}
		t.Fatalf("unexpected request %s", req.URL.Path)
		return nil, nil
	})

	for i := 0; i < 3; i++ {
		genres, err := c.Genres(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, genres)
		assert.Empty(t, genres)
	}
	assert.EqualValues(t, 2, genreCalls.Load())
}

func TestDetailsNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusNotFound, `{"status_message":"not found"}`), nil
	})

	_, err := c.Details(context.Background(), KindMovie, 42)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDetailsResolvesGenreObjects(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/3/movie/603", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"id":603,"title":"The Matrix","release_date":"1999-03-30",
			"genres":[{"id":28,"name":"Action"},{"id":878,"name":"Science Fiction"}]}`), nil
	})

	rec, err := c.Details(context.Background(), KindMovie, 603)
	require.NoError(t, err)
	assert.Equal(t, "The Matrix", rec.Title)
	require.Len(t, rec.Genres, 2)
	assert.Equal(t, "Science Fiction", rec.Genres[1].Name)
}

func TestRetriesServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"page":1,"total_pages":1,"results":[]}`), nil
	})

	_, err := c.TopRated(context.Background(), KindMovie, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	calls.Store(0)
	c = newTestClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusUnauthorized, `{}`), nil
	})
	_, err = c.TopRated(context.Background(), KindMovie, 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "tmdb request failed"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestUnconfiguredClient(t *testing.T) {
	c := New(Options{Logger: logging.Discard()})
	assert.False(t, c.Configured())
	_, err := c.Popular(context.Background(), KindMovie, 1)
	require.ErrorIs(t, err, ErrNotConfigured)
}
