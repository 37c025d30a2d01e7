package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Addr        string
	DatabaseURL string
	LogLevel    string

	AuthSecret        string
	AuthPublicKeyFile string
	AuthIssuer        string
	AllowDebugToken   bool
	DebugToken        string
	MCPToken          string

	PublishConcurrency int
	AdapterTimeout     time.Duration
	AdapterRetries     int
	PublishDryRun      bool

	GraphAPIBaseURL    string
	FacebookPageID     string
	FacebookToken      string
	InstagramAccountID string
	InstagramToken     string

	KafkaBrokers []string
	KafkaTopic   string

	S3Bucket string
	S3Prefix string

	CatalogFile string

	TLSCertFile     string
	TLSKeyFile      string
	TLSClientCAFile string
}

const (
	defaultAddr            = ":8080"
	defaultLogLevel        = "info"
	defaultAdapterTimeout  = 30 * time.Second
	defaultGraphAPIBaseURL = "https://graph.facebook.com/v19.0"
	defaultKafkaTopic      = "brands.contracts"
	defaultS3Prefix        = "brands"
)

func (c Config) Production() bool {
	return c.Env == "production"
}

// Load reads the configuration from the environment. Outside production a
// .env file in the working directory is loaded first; it never overrides
// variables that are already set.
func Load() (Config, error) {
	env := firstNonEmpty(os.Getenv("BRANDS_ENV"), os.Getenv("APP_ENV"), "development")
	if env != "production" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Env:         env,
		Addr:        getEnv("BRANDS_ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv("BRANDS_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		LogLevel:    getEnv("BRANDS_LOG_LEVEL", defaultLogLevel),

		AuthSecret:        os.Getenv("BRANDS_AUTH_SECRET"),
		AuthPublicKeyFile: os.Getenv("BRANDS_AUTH_PUBLIC_KEY_FILE"),
		AuthIssuer:        os.Getenv("BRANDS_AUTH_ISSUER"),
		AllowDebugToken:   getBool("BRANDS_ALLOW_DEBUG_TOKEN", false),
		DebugToken:        os.Getenv("BRANDS_DEBUG_TOKEN"),
		MCPToken:          os.Getenv("BRANDS_MCP_TOKEN"),

		PublishConcurrency: getInt("BRANDS_PUBLISH_CONCURRENCY", 1),
		AdapterTimeout:     getDuration("BRANDS_ADAPTER_TIMEOUT", defaultAdapterTimeout),
		AdapterRetries:     getInt("BRANDS_ADAPTER_RETRIES", 1),
		PublishDryRun:      getBool("BRANDS_PUBLISH_DRY_RUN", false),

		GraphAPIBaseURL:    getEnv("BRANDS_GRAPH_API_URL", defaultGraphAPIBaseURL),
		FacebookPageID:     os.Getenv("BRANDS_FACEBOOK_PAGE_ID"),
		FacebookToken:      os.Getenv("BRANDS_FACEBOOK_TOKEN"),
		InstagramAccountID: os.Getenv("BRANDS_INSTAGRAM_ACCOUNT_ID"),
		InstagramToken:     os.Getenv("BRANDS_INSTAGRAM_TOKEN"),

		KafkaBrokers: splitList(os.Getenv("BRANDS_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("BRANDS_KAFKA_TOPIC", defaultKafkaTopic),

		S3Bucket: os.Getenv("BRANDS_S3_BUCKET"),
		S3Prefix: getEnv("BRANDS_S3_PREFIX", defaultS3Prefix),

		CatalogFile: os.Getenv("BRANDS_CATALOG_FILE"),

		TLSCertFile:     os.Getenv("BRANDS_TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("BRANDS_TLS_KEY_FILE"),
		TLSClientCAFile: os.Getenv("BRANDS_TLS_CLIENT_CA_FILE"),
	}
	if !cfg.AllowDebugToken {
		cfg.DebugToken = ""
	}

	if cfg.PublishConcurrency < 1 {
		return Config{}, fmt.Errorf("BRANDS_PUBLISH_CONCURRENCY must be >= 1")
	}
	if cfg.AdapterTimeout <= 0 {
		return Config{}, fmt.Errorf("BRANDS_ADAPTER_TIMEOUT must be positive")
	}
	if cfg.AllowDebugToken && cfg.DebugToken == "" {
		return Config{}, fmt.Errorf("BRANDS_DEBUG_TOKEN required when BRANDS_ALLOW_DEBUG_TOKEN is set")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return Config{}, fmt.Errorf("BRANDS_TLS_CERT_FILE and BRANDS_TLS_KEY_FILE must be set together")
	}
	if cfg.Production() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL or BRANDS_DATABASE_URL required in production")
		}
		if cfg.AllowDebugToken {
			return Config{}, fmt.Errorf("BRANDS_ALLOW_DEBUG_TOKEN cannot be enabled in production")
		}
		if cfg.PublishDryRun {
			return Config{}, fmt.Errorf("BRANDS_PUBLISH_DRY_RUN cannot be enabled in production")
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
