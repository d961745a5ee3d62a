package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"cinegate/internal/adgate"
	"cinegate/internal/auth"
	"cinegate/internal/catalog"
	"cinegate/internal/content"
	"cinegate/internal/scheduler"
	synchub "cinegate/internal/sync"
	"cinegate/internal/tmdb"
	"cinegate/pkg/database"
	"cinegate/pkg/logging"
	"cinegate/pkg/telemetry"
	"cinegate/pkg/utils"
)

func main() {
	log := logging.NewLogger("api-server", utils.LoadLogConfig())
	srvCfg := utils.LoadServerConfig()

	if err := telemetry.Init(utils.LoadTelemetryConfig(), "api-server"); err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer telemetry.Flush()

	dbCfg := database.DefaultConfig()
	db, err := database.OpenMigrated(dbCfg)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, sqlStore, closeStore := openStore(ctx, srvCfg, db, log)
	defer closeStore()

	toggle := adgate.NewToggle(store, log)
	if err := toggle.Load(ctx); err != nil {
		log.WithError(err).Warn("ads toggle not loaded, keeping default")
	}

	hub := synchub.NewHub(log)
	hub.State = toggle.Enabled
	unsubscribe := toggle.Subscribe(func(enabled bool) {
		hub.BroadcastJSON(synchub.NewAdsEvent(enabled, time.Now()))
	})
	defer unsubscribe()

	tmdbCfg := utils.LoadTMDBConfig()
	tmdbClient := tmdb.New(tmdb.Options{
		APIKey:   tmdbCfg.APIKey,
		Language: tmdbCfg.Language,
		BaseURL:  tmdbCfg.BaseURL,
		Logger:   log,
	})
	if !tmdbClient.Configured() {
		log.Warn("TMDB_API_KEY not set, serving curated content only")
	}

	contentRepo := content.NewRepo(db, srvCfg.MediaBaseURL)

	multi := adgate.NewMultiClick(store, toggle, srvCfg.AdURL, log)
	single := adgate.NewSingleClick(store, toggle, srvCfg.AdURL, log)
	adLog := log.WithField("component", "adgate")
	onAd := func(visitor, contentID, adURL string) {
		adLog.WithFields(logrus.Fields{"visitor": visitor, "content_id": contentID}).Debug("ad opened")
	}
	multi.OnAd = onAd
	single.OnAd = onAd

	authCfg := utils.LoadAuthConfig()
	if authCfg.JWTSecretGenerated {
		log.Warn("CINEGATE_JWT_SECRET not set, admin tokens will not survive a restart")
	}
	gate, err := auth.NewGate(authCfg.AdminPasswordHash, authCfg.AdminPassword)
	if err != nil {
		log.WithError(err).Fatal("admin gate")
	}
	if !gate.Enabled() {
		log.Warn("no admin password configured, admin routes are unreachable")
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(deps{
		DB:      db,
		DBPath:  dbCfg.Path,
		Log:     log,
		Hub:     hub,
		Content: contentRepo,
		Catalog: catalog.NewService(contentRepo, tmdbClient, log),
		Toggle:  toggle,
		Multi:   multi,
		Single:  single,
		Gate:    gate,
		Tokens: auth.TokenService{
			Secret:   []byte(authCfg.JWTSecret),
			Issuer:   authCfg.JWTIssuer,
			Duration: authCfg.JWTDuration,
		},
	})

	httpSrv := &http.Server{
		Addr:              srvCfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	tcpSrv := synchub.NewServer(srvCfg.SyncAddr, hub, log)

	errCh := make(chan error, 2)
	var wg conc.WaitGroup

	wg.Go(func() {
		if err := tcpSrv.Run(ctx); err != nil {
			errCh <- err
		}
	})
	wg.Go(func() {
		log.WithField("addr", srvCfg.HTTPAddr).Info("http api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	jobs := scheduler.New(log)
	if sqlStore != nil {
		if err := jobs.Add(srvCfg.SweepSchedule, sweepJob(sqlStore, log)); err != nil {
			log.WithError(err).Fatal("schedule kv sweep")
		}
	}
	jobs.Start(ctx)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("server error")
		telemetry.CaptureError(err, map[string]string{"phase": "serve"})
	}
	stop()
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}

	wg.Wait()
	log.Info("servers stopped")
}

// openStore picks Redis when configured and reachable, otherwise the SQLite
// kv_store table. The SQL store is returned separately so it can be swept.
func openStore(ctx context.Context, cfg utils.ServerConfig, db *sql.DB, log *logrus.Entry) (adgate.Store, *adgate.SQLStore, func()) {
	if cfg.RedisURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := adgate.DialRedis(dialCtx, cfg.RedisURL)
		if err == nil {
			log.Info("funnel state in redis")
			return adgate.NewRedisStore(client), nil, func() { _ = client.Close() }
		}
		log.WithError(err).Warn("redis unavailable, funnel state in sqlite")
	}
	s := adgate.NewSQLStore(db)
	return s, s, func() {}
}

// sweepJob purges expired kv_store rows. Redis expires keys itself.
func sweepJob(s *adgate.SQLStore, log *logrus.Entry) scheduler.Job {
	return scheduler.JobFunc{JobName: "kv-sweep", Fn: func(ctx context.Context) error {
		n, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.WithField("rows", n).Debug("kv sweep")
		}
		return nil
	}}
}
