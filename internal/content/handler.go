package content

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cinegate/pkg/models"
)

// Handler exposes the curation endpoints. Routes are registered on a group
// that already enforces the admin gate.
type Handler struct {
	Repo *Repo
	Log  *logrus.Entry
}

func NewHandler(repo *Repo, log *logrus.Entry) *Handler {
	return &Handler{Repo: repo, Log: log.WithField("component", "content")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/content", h.list)
	rg.POST("/content", h.create)
	rg.GET("/content/:id", h.getByID)
	rg.PUT("/content/:id", h.update)
	rg.DELETE("/content/:id", h.remove)
	rg.POST("/content/:id/approve", h.approve)
	rg.PUT("/content/:id/cast", h.replaceCast)
	rg.POST("/content/:id/links", h.addLink)
	rg.DELETE("/links/:link_id", h.removeLink)
	rg.GET("/genres", h.listGenres)
	rg.POST("/genres", h.upsertGenre)
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Status: strings.ToLower(strings.TrimSpace(c.Query("status"))),
		Q:      c.Query("q"),
		Limit:  parseInt(c.Query("limit"), 50),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if q.Status != "" && q.Status != models.StatusPending && q.Status != models.StatusApproved {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending or approved"})
		return
	}
	if t := c.Query("type"); t != "" {
		ct, ok := models.ParseContentType(t)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be movie or series"})
			return
		}
		q.Type = ct
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		h.Log.WithError(err).Error("count content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		h.Log.WithError(err).Error("list content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) getByID(c *gin.Context) {
	m, err := h.Repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Log.WithError(err).Error("get content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) create(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.Repo.Create(c.Request.Context(), in)
	if err != nil {
		h.Log.WithError(err).Error("create content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	h.Log.WithField("content_id", m.ID).Info("content created")
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) update(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.Repo.Update(c.Request.Context(), c.Param("id"), in)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("update content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) remove(c *gin.Context) {
	ok, err := h.Repo.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Log.WithError(err).Error("delete content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) approve(c *gin.Context) {
	id := c.Param("id")
	err := h.Repo.SetStatus(c.Request.Context(), id, models.StatusApproved)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("approve content")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "approve failed"})
		return
	}
	h.Log.WithField("content_id", id).Info("content approved")
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.StatusApproved})
}

func (h *Handler) replaceCast(c *gin.Context) {
	var req struct {
		Cast []CastInput `json:"cast"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	err := h.Repo.ReplaceCast(c.Request.Context(), c.Param("id"), req.Cast)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("replace cast")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cast updated"})
}

func (h *Handler) addLink(c *gin.Context) {
	var in LinkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(in.URL) == "" || strings.TrimSpace(in.Platform) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url and platform required"})
		return
	}

	link, err := h.Repo.AddLink(c.Request.Context(), c.Param("id"), in)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("add streaming link")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (h *Handler) removeLink(c *gin.Context) {
	ok, err := h.Repo.DeleteLink(c.Request.Context(), c.Param("link_id"))
	if err != nil {
		h.Log.WithError(err).Error("delete streaming link")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) listGenres(c *gin.Context) {
	genres, err := h.Repo.ListGenres(c.Request.Context())
	if err != nil {
		h.Log.WithError(err).Error("list genres")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": genres})
}

func (h *Handler) upsertGenre(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		TMDBID int64  `json:"tmdb_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	g, err := h.Repo.UpsertGenre(c.Request.Context(), req.Name, req.TMDBID)
	if err != nil {
		h.Log.WithError(err).Error("upsert genre")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	c.JSON(http.StatusOK, g)
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
