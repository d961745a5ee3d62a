package tmdb

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"cinegate/pkg/models"
)

// Result is the raw TMDB list entry, covering both the movie and the TV shapes.
type Result struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	MediaType    string  `json:"media_type"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	GenreIDs     []int64 `json:"genre_ids"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
	PosterPath   string  `json:"poster_path"`
}

// normalize maps one TMDB result into a ContentRecord. The explicit
// media_type tag wins; endpoints scoped to one kind pass it as fallback.
// Results without an id, a title or a movie/tv tag are rejected.
func (c *Client) normalize(it Result, fallback Kind, genreNames map[string]string) (models.ContentRecord, bool) {
	if it.ID <= 0 {
		return models.ContentRecord{}, false
	}

	tag := strings.TrimSpace(it.MediaType)
	if tag == "" {
		tag = string(fallback)
	}
	var ctype models.ContentType
	switch tag {
	case string(KindMovie):
		ctype = models.ContentMovie
	case string(KindTV):
		ctype = models.ContentSeries
	default:
		return models.ContentRecord{}, false
	}

	title := pickTitle(ctype, it.Title, it.Name)
	if title == "" {
		return models.ContentRecord{}, false
	}

	date := it.ReleaseDate
	if ctype == models.ContentSeries || date == "" {
		if it.FirstAirDate != "" {
			date = it.FirstAirDate
		}
	}

	rec := models.ContentRecord{
		ID:          strconv.FormatInt(it.ID, 10),
		Title:       title,
		ContentType: ctype,
		Overview:    strings.TrimSpace(it.Overview),
		ReleaseDate: date,
		ReleaseYear: parseYear(date),
		Genres:      make([]models.Genre, 0, len(it.GenreIDs)),
		PosterPath:  strings.TrimSpace(it.PosterPath),
		TMDBID:      it.ID,
		Source:      models.SourceRemote,
	}
	rec.PosterURL = c.posterURL(rec.PosterPath)
	if it.VoteAverage > 0 || it.VoteCount > 0 {
		r := it.VoteAverage
		rec.Rating = &r
	}
	for _, gid := range it.GenreIDs {
		id := strconv.FormatInt(gid, 10)
		rec.Genres = append(rec.Genres, models.Genre{ID: id, ExternalID: id, Name: genreNames[id]})
	}
	return rec, true
}

func pickTitle(ctype models.ContentType, movieTitle, seriesName string) string {
	movieTitle = strings.TrimSpace(movieTitle)
	seriesName = strings.TrimSpace(seriesName)
	if ctype == models.ContentMovie && movieTitle != "" {
		return movieTitle
	}
	if seriesName != "" {
		return seriesName
	}
	return movieTitle
}

func parseYear(date string) int {
	if date == "" {
		return 0
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}

// posterURL resolves a TMDB relative poster path into a displayable URL.
func (c *Client) posterURL(p string) string {
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return fmt.Sprintf("%s/%s", c.imageBaseURL, path.Join(posterSize, strings.TrimPrefix(p, "/")))
}
