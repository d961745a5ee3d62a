package main

import (
	"context"
	"flag"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/afero"

	"cinegate/internal/tmdb"
	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

func main() {
	var (
		outPath = flag.String("out", "data/mirror.json", "output JSON path")
		pages   = flag.Int("pages", 3, "pages per list to copy")
	)
	flag.Parse()

	log := logging.NewLogger("export-mirror", utils.LoadLogConfig())

	cfg := utils.LoadTMDBConfig()
	client := tmdb.New(tmdb.Options{
		APIKey:   cfg.APIKey,
		Language: cfg.Language,
		BaseURL:  cfg.BaseURL,
		Logger:   log,
	})
	if !client.Configured() {
		log.Fatal("TMDB_API_KEY is required to take a snapshot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snap, err := client.Snapshot(ctx, *pages)
	if err != nil {
		log.WithError(err).Fatal("snapshot failed")
	}
	if err := snap.Save(afero.NewOsFs(), *outPath); err != nil {
		log.WithError(err).Fatal("write mirror")
	}

	log.WithField("file", *outPath).WithField("titles", snap.Count()).Info("mirror exported")
}
