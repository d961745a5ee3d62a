package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cinegate/internal/adgate"
	"cinegate/internal/auth"
	"cinegate/internal/catalog"
	"cinegate/internal/content"
	synchub "cinegate/internal/sync"
	"cinegate/pkg/metrics"
	"cinegate/pkg/telemetry"
)

type deps struct {
	DB      *sql.DB
	DBPath  string
	Log     *logrus.Entry
	Hub     *synchub.Hub
	Content *content.Repo
	Catalog *catalog.Service
	Toggle  *adgate.Toggle
	Multi   *adgate.Funnel
	Single  *adgate.Funnel
	Gate    *auth.Gate
	Tokens  auth.TokenService
}

func accessLog(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("http request")
	}
}

func newRouter(d deps) *gin.Engine {
	router := gin.New()
	router.Use(telemetry.Recovery(d.Log), metrics.Middleware(), accessLog(d.Log.WithField("component", "http")))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/ws", synchub.WSHandler(d.Hub))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": d.DBPath})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := d.Hub.Stats()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := d.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "not_ready",
				"db_error":    err.Error(),
				"tcp_clients": stats.TCPClients,
				"ws_clients":  stats.WSClients,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"ads_enabled": d.Toggle.Enabled(),
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	api := router.Group("/api")
	catalogHandler := &catalog.Handler{Service: d.Catalog}
	catalogHandler.RegisterRoutes(api)

	adHandler := &adgate.Handler{
		Download: d.Multi,
		Watch:    d.Single,
		Toggle:   d.Toggle,
		Log:      d.Log.WithField("component", "adgate"),
	}
	adHandler.RegisterRoutes(api)

	auth.NewHandler(d.Gate, d.Tokens, d.Log).RegisterRoutes(router.Group("/auth"))

	admin := router.Group("/admin")
	admin.Use(auth.AuthMiddleware(d.Tokens))
	content.NewHandler(d.Content, d.Log).RegisterRoutes(admin)
	adHandler.RegisterAdmin(admin)

	return router
}
