// Package catalog merges curated and remote content into one browsable list.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"

	"cinegate/pkg/models"
)

const (
	DefaultPageSize = 24
	MaxPageSize     = 100

	// AnimationGenreID is TMDB's genre id for animation.
	AnimationGenreID = "16"
)

// Type filter values accepted by Apply.
const (
	TypeAll       = "all"
	TypeMovie     = "movie"
	TypeTV        = "tv"
	TypeAnimation = "animation"
)

type Filter struct {
	Type      string
	GenreID   string
	GenreName string // resolved display name for GenreID, may be empty
	Search    string
	Page      int
	PageSize  int
}

type Page struct {
	Items      []models.ContentRecord `json:"items"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalItems int                    `json:"total_items"`
	TotalPages int                    `json:"total_pages"`
}

// Apply merges curated then remote records, drops duplicate ids (first one
// wins), filters and paginates. It does not mutate its inputs.
func Apply(curated, remote []models.ContentRecord, f Filter) Page {
	merged := Merge(curated, remote)

	out := make([]models.ContentRecord, 0, len(merged))
	for _, rec := range merged {
		if Matches(rec, f) {
			out = append(out, rec)
		}
	}
	return Paginate(out, f.Page, f.PageSize)
}

// Merge concatenates the sources and keeps the first record seen for each id.
func Merge(sources ...[]models.ContentRecord) []models.ContentRecord {
	n := 0
	for _, s := range sources {
		n += len(s)
	}
	seen := make(map[string]struct{}, n)
	out := make([]models.ContentRecord, 0, n)
	for _, s := range sources {
		for _, rec := range s {
			if rec.ID == "" {
				continue
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

// Matches reports whether rec passes the type, genre and search filters.
func Matches(rec models.ContentRecord, f Filter) bool {
	return matchType(rec, f.Type) && matchGenre(rec, f.GenreID, f.GenreName) && matchSearch(rec, f.Search)
}

func matchType(rec models.ContentRecord, t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case TypeMovie:
		return rec.ContentType == models.ContentMovie
	case TypeTV, "series":
		return rec.ContentType == models.ContentSeries
	case TypeAnimation:
		return IsAnimation(rec)
	default:
		return true
	}
}

// IsAnimation reports whether any genre is animation, by name or TMDB id.
func IsAnimation(rec models.ContentRecord) bool {
	for _, g := range rec.Genres {
		if g.ExternalID == AnimationGenreID || strings.Contains(strings.ToLower(g.Name), "animation") {
			return true
		}
	}
	return false
}

// matchGenre compares by local id, then external id, then display name.
// Curated genres that were never mapped to TMDB only match by name.
func matchGenre(rec models.ContentRecord, id, name string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, TypeAll) {
		return true
	}
	name = strings.TrimSpace(name)
	for _, g := range rec.Genres {
		if g.ID == id || (g.ExternalID != "" && g.ExternalID == id) {
			return true
		}
		if name != "" && strings.EqualFold(strings.TrimSpace(g.Name), name) {
			return true
		}
	}
	return false
}

// matchSearch is a substring test on Unicode case-folded text.
func matchSearch(rec models.ContentRecord, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(rec.Title), fold.String(term))
}

// Paginate slices items into 1-based pages. A page past the end is empty.
func Paginate(items []models.ContentRecord, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(items)
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}

	p := Page{
		Items:      []models.ContentRecord{},
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: pages,
	}
	if page > pages {
		return p
	}
	start := (page - 1) * size
	if start >= total {
		return p
	}
	end := min(start+size, total)
	p.Items = append(p.Items, items[start:end]...)
	return p
}
