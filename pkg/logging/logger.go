// Package logging builds the structured logger shared by every cinegate binary.
//
//	log := logging.NewLogger("api-server", utils.LoadLogConfig())
//	log.WithField("content_id", id).Info("content approved")
package logging

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"cinegate/pkg/utils"
)

// NewLogger returns a JSON logrus entry tagged with the service name. When
// cfg.File is set, output is teed into a size-rotated file. The standard
// library logger is redirected into the same sink so third-party packages
// that use log.Printf end up in one place.
func NewLogger(service string, cfg utils.LogConfig) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			log.WithError(err).Warn("could not create log directory, logging to stdout only")
		} else {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   true,
			})
		}
	}
	log.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.WithField("service", service).WriterLevel(logrus.InfoLevel))

	return log.WithField("service", service)
}

// Discard is a logger for tests and tools that do not care about output.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
