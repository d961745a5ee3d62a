package models

import (
	"strconv"
	"strings"
	"time"
)

type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
)

// ParseContentType accepts the curated spelling ("movie", "series") as well as
// TMDB media-type tags ("tv"). Unknown values return false.
func ParseContentType(s string) (ContentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "film":
		return ContentMovie, true
	case "series", "tv", "show":
		return ContentSeries, true
	default:
		return "", false
	}
}

const (
	SourceCurated = "curated"
	SourceRemote  = "remote"

	StatusPending  = "pending"
	StatusApproved = "approved"
)

type Genre struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"` // TMDB genre id when known
	Name       string `json:"name"`
}

type StreamingLink struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

type CastMember struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Character  string `json:"character,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// ContentRecord is the normalized movie or series entry, regardless of whether
// it came from the curated store or the remote metadata API.
type ContentRecord struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	ContentType    ContentType     `json:"content_type"`
	Overview       string          `json:"overview,omitempty"`
	ReleaseDate    string          `json:"release_date,omitempty"`
	ReleaseYear    int             `json:"release_year,omitempty"`
	Genres         []Genre         `json:"genres"`
	Rating         *float64        `json:"rating,omitempty"`
	PosterPath     string          `json:"-"`
	PosterURL      string          `json:"poster_url,omitempty"`
	StreamingLinks []StreamingLink `json:"streaming_links,omitempty"`
	Cast           []CastMember    `json:"cast,omitempty"`
	TMDBID         int64           `json:"tmdb_id,omitempty"`
	Source         string          `json:"source"`
	Status         string          `json:"status,omitempty"`
	CreatedAt      time.Time       `json:"created_at,omitzero"`
	UpdatedAt      time.Time       `json:"updated_at,omitzero"`
}

// Year returns the display year: the explicit release year when set,
// otherwise the leading year of ReleaseDate. Zero means unknown.
func (c ContentRecord) Year() int {
	if c.ReleaseYear > 0 {
		return c.ReleaseYear
	}
	d := strings.TrimSpace(c.ReleaseDate)
	if len(d) < 4 {
		return 0
	}
	y, err := strconv.Atoi(d[:4])
	if err != nil {
		return 0
	}
	return y
}

// Valid reports whether the record can be handed to the aggregation engine.
func (c ContentRecord) Valid() bool {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Title) == "" {
		return false
	}
	return c.ContentType == ContentMovie || c.ContentType == ContentSeries
}
