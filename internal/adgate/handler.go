package adgate

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	VisitorCookie = "cg_visitor"
	visitorMaxAge = 365 * 24 * 60 * 60
)

type Handler struct {
	Download *Funnel // multi-click, step 1
	Watch    *Funnel // single-click, step 2
	Toggle   *Toggle
	Log      *logrus.Entry
}

// RegisterRoutes mounts the public funnel and settings routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/download/:id/step1", h.step(h.Download, func(id string) string { return "/download/" + id + "/final" }))
	rg.POST("/download/:id/step2", h.step(h.Watch, func(id string) string { return "/watch/" + id }))
	rg.GET("/settings/ads", h.getSettings)
}

// RegisterAdmin mounts the toggle mutation on an authenticated group.
func (h *Handler) RegisterAdmin(rg *gin.RouterGroup) {
	rg.PUT("/settings/ads", h.putSettings)
	rg.GET("/settings/ads", h.getSettings)
}

// visitorID returns the caller's visitor id, issuing a cookie on first use.
func visitorID(c *gin.Context) string {
	if v, err := c.Cookie(VisitorCookie); err == nil && validVisitor(v) {
		return v
	}
	v := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(VisitorCookie, v, visitorMaxAge, "/", "", false, true)
	return v
}

func (h *Handler) step(f *Funnel, nextPath func(id string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content id required"})
			return
		}
		visitor := visitorID(c)

		var next string
		out := f.Click(c.Request.Context(), visitor, id, func() {
			next = nextPath(id)
		})

		resp := gin.H{
			"content_id": id,
			"funnel":     string(f.Kind()),
			"count":      out.Count,
			"ad_opened":  out.AdOpened,
			"continue":   out.Continued,
		}
		if out.AdOpened {
			resp["ad_url"] = out.AdURL
		}
		if next != "" {
			resp["next"] = next
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ads_enabled": h.Toggle.Enabled()})
}

func (h *Handler) putSettings(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled (bool) required"})
		return
	}

	persisted := true
	if err := h.Toggle.Set(c.Request.Context(), *req.Enabled); err != nil {
		persisted = false
		if h.Log != nil {
			h.Log.WithError(err).Warn("ads toggle persisted in memory only")
		}
	}
	c.JSON(http.StatusOK, gin.H{"ads_enabled": h.Toggle.Enabled(), "persisted": persisted})
}
