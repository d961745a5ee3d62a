package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cinegate/pkg/models"
)

// SessionHeader lets a client tie consecutive browse requests together so a
// slow, older response is rejected instead of overwriting a newer one.
const SessionHeader = "X-Session-ID"

type Handler struct {
	Service *Service
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/catalog", h.browse)
	rg.GET("/genres", h.genres)
	rg.GET("/content/:id", h.detail)
	rg.GET("/watch/:id", h.watch)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "content not found", "action": "home"})
}

// GET /api/catalog?q=&genre=&type=&page=&page_size=
func (h *Handler) browse(c *gin.Context) {
	q := Query{
		Search:   strings.TrimSpace(c.Query("q")),
		Genre:    strings.TrimSpace(c.Query("genre")),
		Type:     strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", TypeAll))),
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), DefaultPageSize),
	}

	page, err := h.Service.Browse(c.Request.Context(), c.GetHeader(SessionHeader), q)
	switch {
	case errors.Is(err, ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": "superseded by a newer request"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "browse failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":       q,
		"items":       page.Items,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_items": page.TotalItems,
		"total_pages": page.TotalPages,
	})
}

func (h *Handler) genres(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Service.Genres(c.Request.Context())})
}

// GET /api/content/:id?type=movie|tv
func (h *Handler) detail(c *gin.Context) {
	rec, err := h.Service.Detail(c.Request.Context(), c.Param("id"), c.Query("type"))
	if err != nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GET /api/watch/:id
func (h *Handler) watch(c *gin.Context) {
	rec, err := h.Service.Detail(c.Request.Context(), c.Param("id"), c.Query("type"))
	if err != nil {
		notFound(c)
		return
	}
	links := rec.StreamingLinks
	if links == nil {
		links = []models.StreamingLink{}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              rec.ID,
		"title":           rec.Title,
		"streaming_links": links,
	})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
