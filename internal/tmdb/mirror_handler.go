package tmdb

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const mirrorPageSize = 20

// MirrorHandler answers the subset of TMDB v3 the Client calls, backed by a
// Mirror. The api_key and language parameters are accepted and ignored.
type MirrorHandler struct {
	Mirror   *Mirror
	PageSize int
}

func NewMirrorHandler(m *Mirror) *MirrorHandler {
	return &MirrorHandler{Mirror: m, PageSize: mirrorPageSize}
}

func (h *MirrorHandler) RegisterRoutes(rg *gin.RouterGroup) {
	for _, kind := range []Kind{KindMovie, KindTV} {
		rg.GET("/genre/"+string(kind)+"/list", h.genres(kind))
		rg.GET("/discover/"+string(kind), h.discover(kind))
		rg.GET("/"+string(kind)+"/popular", h.list(kind))
		rg.GET("/"+string(kind)+"/top_rated", h.list(kind))
		rg.GET("/"+string(kind)+"/:id", h.detail(kind))
	}
	rg.GET("/search/multi", h.search)
}

func (h *MirrorHandler) genres(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := h.Mirror.Genres[kind]
		if out == nil {
			out = []GenreEntry{}
		}
		c.JSON(http.StatusOK, genreListResponse{Genres: out})
	}
}

func (h *MirrorHandler) list(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.page(c, h.Mirror.Titles[kind])
	}
}

// discover treats with_genres as a comma-separated AND list, as TMDB does.
func (h *MirrorHandler) discover(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var want []int64
		for _, part := range strings.Split(c.Query("with_genres"), ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				want = append(want, id)
			}
		}

		out := make([]Result, 0)
		for _, r := range h.Mirror.Titles[kind] {
			if hasAllGenres(r.GenreIDs, want) {
				out = append(out, r)
			}
		}
		h.page(c, out)
	}
}

func (h *MirrorHandler) search(c *gin.Context) {
	q := strings.ToLower(strings.TrimSpace(c.Query("query")))
	out := make([]Result, 0)
	if q != "" {
		for _, kind := range []Kind{KindMovie, KindTV} {
			for _, r := range h.Mirror.Titles[kind] {
				if strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Name), q) {
					out = append(out, r)
				}
			}
		}
	}
	h.page(c, out)
}

func (h *MirrorHandler) detail(kind Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			notFoundTMDB(c)
			return
		}
		for _, r := range h.Mirror.Titles[kind] {
			if r.ID != id {
				continue
			}
			resp := detailResponse{Result: r, Genres: make([]GenreEntry, 0, len(r.GenreIDs))}
			names := make(map[int64]string)
			for _, g := range h.Mirror.Genres[kind] {
				names[g.ID] = g.Name
			}
			for _, gid := range r.GenreIDs {
				resp.Genres = append(resp.Genres, GenreEntry{ID: gid, Name: names[gid]})
			}
			// detail payloads carry genre objects only
			resp.GenreIDs = nil
			c.JSON(http.StatusOK, resp)
			return
		}
		notFoundTMDB(c)
	}
}

func (h *MirrorHandler) page(c *gin.Context, items []Result) {
	size := h.PageSize
	if size <= 0 {
		size = mirrorPageSize
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	totalPages := (len(items) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	results := []Result{}
	if start := (page - 1) * size; start < len(items) {
		results = items[start:min(start+size, len(items))]
	}
	c.JSON(http.StatusOK, listResponse{Page: page, Results: results, TotalPages: totalPages})
}

func hasAllGenres(have, want []int64) bool {
	for _, w := range want {
		found := false
		for _, g := range have {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func notFoundTMDB(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success":        false,
		"status_code":    34,
		"status_message": "The resource you requested could not be found.",
	})
}
