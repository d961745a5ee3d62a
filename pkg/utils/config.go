package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-password/password"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration

	// JWTSecretGenerated is set when no secret was configured and a random
	// per-process one is used. Tokens then do not survive a restart.
	JWTSecretGenerated bool

	// AdminPasswordHash is a bcrypt hash. When empty, AdminPassword is hashed at startup.
	AdminPasswordHash string
	AdminPassword     string
}

func LoadAuthConfig() AuthConfig {
	secret := strings.TrimSpace(os.Getenv("CINEGATE_JWT_SECRET"))
	generated := false
	if secret == "" {
		secret = password.MustGenerate(48, 12, 0, false, true)
		generated = true
	}

	issuer := os.Getenv("CINEGATE_JWT_ISSUER")
	if issuer == "" {
		issuer = "cinegate"
	}

	ttl := 24 * time.Hour
	if hours := envInt("CINEGATE_JWT_TTL_HOURS", 0); hours > 0 {
		ttl = time.Duration(hours) * time.Hour
	}

	return AuthConfig{
		JWTSecret:          secret,
		JWTIssuer:          issuer,
		JWTDuration:        ttl,
		JWTSecretGenerated: generated,
		AdminPasswordHash:  strings.TrimSpace(os.Getenv("CINEGATE_ADMIN_PASSWORD_HASH")),
		AdminPassword:      os.Getenv("CINEGATE_ADMIN_PASSWORD"),
	}
}

type TMDBConfig struct {
	APIKey   string
	Language string
	BaseURL  string
}

func LoadTMDBConfig() TMDBConfig {
	return TMDBConfig{
		APIKey:   strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		Language: envString("TMDB_LANGUAGE", "en-US"),
		BaseURL:  os.Getenv("TMDB_BASE_URL"),
	}
}

type ServerConfig struct {
	HTTPAddr     string
	GRPCAddr     string
	SyncAddr     string
	RedisURL     string
	AdURL        string
	MediaBaseURL string

	// SweepSchedule is a cron spec for purging expired kv_store rows.
	SweepSchedule string
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:     envString("CINEGATE_HTTP_ADDR", ":8080"),
		GRPCAddr:     envString("CINEGATE_GRPC_ADDR", ":9090"),
		SyncAddr:     envString("CINEGATE_SYNC_ADDR", ":7070"),
		RedisURL:     strings.TrimSpace(os.Getenv("CINEGATE_REDIS_URL")),
		AdURL:        envString("CINEGATE_AD_URL", "https://ads.example.com/direct"),
		MediaBaseURL: strings.TrimRight(os.Getenv("CINEGATE_MEDIA_BASE_URL"), "/"),

		SweepSchedule: envString("CINEGATE_SWEEP_SCHEDULE", "@every 10m"),
	}
}

type TelemetryConfig struct {
	SentryDSN   string
	Environment string
	Release     string
}

func LoadTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		Environment: envString("CINEGATE_ENV", "development"),
		Release:     envString("CINEGATE_RELEASE", "dev"),
	}
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func LoadLogConfig() LogConfig {
	return LogConfig{
		Level:      os.Getenv("LOG_LEVEL"),
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
		MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
		MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 14),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt falls back to def when the variable is unset or not a number.
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
