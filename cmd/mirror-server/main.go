package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/afero"

	"cinegate/internal/tmdb"
	"cinegate/pkg/logging"
	"cinegate/pkg/metrics"
	"cinegate/pkg/telemetry"
	"cinegate/pkg/utils"
)

// mirror-server serves data/mirror.json under /3 in TMDB's shape. Point the
// api-server at it with TMDB_BASE_URL=http://localhost:8090/3.
func main() {
	dataPath := flag.String("data", "data/mirror.json", "mirror JSON path")
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	log := logging.NewLogger("mirror-server", utils.LoadLogConfig())
	if err := telemetry.Init(utils.LoadTelemetryConfig(), "mirror-server"); err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer telemetry.Flush()

	mirror, err := tmdb.LoadMirror(afero.NewOsFs(), *dataPath)
	if err != nil {
		log.WithError(err).Fatal("load mirror")
	}
	log.WithField("titles", mirror.Count()).WithField("fetched_at", mirror.FetchedAt).Info("mirror loaded")

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(telemetry.Recovery(log), metrics.Middleware())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "titles": mirror.Count()})
	})
	tmdb.NewMirrorHandler(mirror).RegisterRoutes(router.Group("/3"))

	srv := &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", *addr).Info("mirror listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("mirror server")
	}
	log.Info("mirror stopped")
}
