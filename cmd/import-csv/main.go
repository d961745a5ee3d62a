package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"cinegate/internal/content"
	"cinegate/pkg/database"
	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

func main() {
	in := flag.String("in", "data/content.csv", "input CSV path for curated content")
	flag.Parse()

	log := logging.NewLogger("import-csv", utils.LoadLogConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.OpenMigrated(database.DefaultConfig())
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	f, err := os.Open(*in)
	if err != nil {
		log.WithError(err).Fatal("open input")
	}
	defer f.Close()

	repo := content.NewRepo(db, utils.LoadServerConfig().MediaBaseURL)
	res, err := content.ImportCSV(ctx, repo, f)
	if err != nil {
		log.WithError(err).Fatal("import failed")
	}

	log.WithFields(logrus.Fields{
		"file":    *in,
		"created": res.Created,
		"updated": res.Updated,
		"skipped": res.Skipped,
	}).Info("imported curated content")
}
