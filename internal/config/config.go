package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rezonia/fiscal-xml/internal/processor"
	"github.com/rezonia/fiscal-xml/internal/taxcalc"
)

// Config holds application configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	LogLevel    string

	HTTPAddr          string
	MaxFileSize       int64
	MaxConcurrentJobs int
	PrometheusEnabled bool

	TaxAPI TaxAPIConfig

	RedisURL string
	CacheTTL time.Duration

	TrustBundle string
}

// TaxAPIConfig configures the tax calculation service client
type TaxAPIConfig struct {
	URL          string
	Timeout      time.Duration
	MaxRetries   int
	ItemWorkers  int
	ProductClass string
}

// DefaultMaxFileSize is the upload limit in bytes
const DefaultMaxFileSize = 10 << 20

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only
func FromEnv() Config {
	return Config{
		ServiceName:       getenv("SERVICE_NAME", "fiscal-xml"),
		Environment:       getenv("ENVIRONMENT", "development"),
		Version:           getenv("APP_VERSION", "0.1.0"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		MaxFileSize:       int64(getenvInt("MAX_FILE_SIZE", DefaultMaxFileSize)),
		MaxConcurrentJobs: getenvInt("MAX_CONCURRENT_JOBS", processor.DefaultWorkers),
		PrometheusEnabled: getenvBool("PROMETHEUS_ENABLED", true),
		TaxAPI: TaxAPIConfig{
			URL:          strings.TrimRight(getenv("TAX_API_URL", taxcalc.DefaultBaseURL), "/"),
			Timeout:      getenvDuration("TAX_API_TIMEOUT", taxcalc.DefaultTimeout),
			MaxRetries:   getenvInt("TAX_API_MAX_RETRIES", taxcalc.DefaultMaxAttempts),
			ItemWorkers:  getenvInt("TAX_API_ITEM_WORKERS", taxcalc.DefaultItemWorkers),
			ProductClass: getenv("TAX_API_PRODUCT_CLASS", taxcalc.DefaultProductClass),
		},
		RedisURL:    strings.TrimSpace(getenv("REDIS_URL", "")),
		CacheTTL:    getenvDuration("CACHE_TTL", time.Hour),
		TrustBundle: strings.TrimSpace(getenv("TRUST_BUNDLE", "")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("30s") or a plain number of seconds
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
