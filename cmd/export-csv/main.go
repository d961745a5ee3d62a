package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"cinegate/internal/content"
	"cinegate/pkg/database"
	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

func main() {
	out := flag.String("out", "data/content.csv", "output CSV path for curated content")
	flag.Parse()

	log := logging.NewLogger("export-csv", utils.LoadLogConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.OpenMigrated(database.DefaultConfig())
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.WithError(err).Fatal("create output dir")
	}
	f, err := os.Create(*out)
	if err != nil {
		log.WithError(err).Fatal("create output")
	}

	n, err := content.ExportCSV(ctx, content.NewRepo(db, ""), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.WithError(err).Fatal("export failed")
	}

	log.WithFields(logrus.Fields{"file": *out, "rows": n}).Info("exported curated content")
}
