package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"google.golang.org/grpc"

	"cinegate/internal/catalog"
	"cinegate/internal/content"
	"cinegate/internal/grpcserver"
	"cinegate/internal/tmdb"
	"cinegate/pkg/database"
	"cinegate/pkg/logging"
	"cinegate/pkg/telemetry"
	"cinegate/pkg/utils"
)

func main() {
	log := logging.NewLogger("grpc-server", utils.LoadLogConfig())
	srvCfg := utils.LoadServerConfig()
	if err := telemetry.Init(utils.LoadTelemetryConfig(), "grpc-server"); err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer telemetry.Flush()

	db, err := database.OpenMigrated(database.DefaultConfig())
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	tmdbCfg := utils.LoadTMDBConfig()
	svc := catalog.NewService(
		content.NewRepo(db, srvCfg.MediaBaseURL),
		tmdb.New(tmdb.Options{
			APIKey:   tmdbCfg.APIKey,
			Language: tmdbCfg.Language,
			BaseURL:  tmdbCfg.BaseURL,
			Logger:   log,
		}),
		log,
	)

	listener, err := net.Listen("tcp", srvCfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger(log.WithField("component", "grpc"))))
	grpcserver.RegisterCatalogServer(grpcServer, grpcserver.NewServer(svc))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		grpcServer.GracefulStop()
	}()

	log.WithField("addr", srvCfg.GRPCAddr).Info("grpc server listening")
	if err := grpcServer.Serve(listener); err != nil {
		telemetry.CaptureError(err, map[string]string{"phase": "serve"})
		telemetry.Flush()
		log.WithError(err).Fatal("grpc server stopped")
	}
}
