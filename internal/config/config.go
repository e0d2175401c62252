package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration values.
type Config struct {
	Secret          string
	HTTPPort        string
	DatabaseDSN     string
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	ReportBaseURL   string
	CacheMaxAge     time.Duration
}

// Load reads configuration from environment variables with reasonable
// defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "surveydesk.db"
	}

	upstreamURL := os.Getenv("UPSTREAM_BASE_URL")
	if upstreamURL == "" {
		upstreamURL = "http://localhost:9000"
	}

	reportBaseURL := os.Getenv("REPORT_BASE_URL")
	if reportBaseURL == "" {
		// The PDF printer navigates back to this console.
		reportBaseURL = "http://localhost:" + port
	}

	return Config{
		Secret:          secret,
		HTTPPort:        port,
		DatabaseDSN:     dsn,
		UpstreamBaseURL: upstreamURL,
		UpstreamTimeout: durationEnv("UPSTREAM_TIMEOUT_SECONDS", 15*time.Second, time.Second),
		ReportBaseURL:   reportBaseURL,
		CacheMaxAge:     durationEnv("CACHE_MAX_AGE_MINUTES", 5*time.Minute, time.Minute),
	}
}

func durationEnv(name string, fallback, unit time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		log.Printf("invalid %s value %q, using default", name, raw)
		return fallback
	}
	return time.Duration(value) * unit
}
