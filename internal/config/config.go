package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration sourced from the environment.
type Config struct {
	AppName string
	BoardID string

	PostgresURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ObjectEndpoint  string
	ObjectRegion    string
	ObjectBucket    string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectUseSSL    bool

	CacheDir       string
	HTTPListenAddr string
	MetricsAddr    string

	FieldDebounce time.Duration
	DragDebounce  time.Duration
	PollInterval  time.Duration

	UserID    string
	UserEmail string

	ShutdownTimeout  time.Duration
	HealthcheckProbe time.Duration
	OTLPEndpoint     string
}

// Load reads configuration from the environment while applying sensible
// defaults for local development. Leaving POSTGRES_URL empty selects the
// in-memory demo store; leaving OBJECT_ENDPOINT empty disables attachments.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", "archboard"),
		BoardID:          getEnv("BOARD_ID", "main"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		ObjectEndpoint:   os.Getenv("OBJECT_ENDPOINT"),
		ObjectRegion:     getEnv("OBJECT_REGION", "us-east-1"),
		ObjectBucket:     getEnv("OBJECT_BUCKET", "archboard"),
		ObjectAccessKey:  os.Getenv("OBJECT_ACCESS_KEY"),
		ObjectSecretKey:  os.Getenv("OBJECT_SECRET_KEY"),
		CacheDir:         getEnv("CACHE_DIR", ".archboard"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:      getEnv("METRICS_LISTEN_ADDR", ":9090"),
		FieldDebounce:    getDuration("FIELD_DEBOUNCE", 800*time.Millisecond),
		DragDebounce:     getDuration("DRAG_DEBOUNCE", time.Second),
		PollInterval:     getDuration("POLL_INTERVAL", 3*time.Second),
		UserID:           getEnv("BOARD_USER_ID", ""),
		UserEmail:        getEnv("BOARD_USER_EMAIL", ""),
		ShutdownTimeout:  getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HealthcheckProbe: getDuration("HEALTHCHECK_INTERVAL", 30*time.Second),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	cfg.RedisDB = getInt("REDIS_DB", 0)
	cfg.ObjectUseSSL = getBool("OBJECT_USE_SSL", false)

	if cfg.ObjectEndpoint != "" && (cfg.ObjectAccessKey == "" || cfg.ObjectSecretKey == "") {
		return Config{}, fmt.Errorf("object storage credentials must be provided when OBJECT_ENDPOINT is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
