package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	MetricsAddr   string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	CatalogPath   string

	// Bcrypt hashes of accepted admin API keys, comma separated in the
	// environment. Empty means token role is the only admin path.
	AdminKeyHashes []string

	RequestTimeout time.Duration

	Redis RedisConfig
	Kafka KafkaConfig

	// Autosave throttle applied by the HTTP layer, per principal.
	AutosaveLimit  int
	AutosaveWindow time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis
// and the service falls back to in-memory implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds audit pipeline settings. Empty brokers disable Kafka
// publishing; events then go to the log-only publisher.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("TAXFILE_ADDR", ":8080"),
		MetricsAddr:    envOr("TAXFILE_METRICS_ADDR", ":9090"),
		DatabaseURL:    os.Getenv("TAXFILE_DATABASE_URL"),
		CatalogPath:    os.Getenv("TAXFILE_CATALOG_PATH"),
		JWTIssuer:      envOr("TAXFILE_JWT_ISSUER", "taxfile"),
		JWTAudience:    envOr("TAXFILE_JWT_AUDIENCE", "taxfile-api"),
		RequestTimeout: envDuration("TAXFILE_REQUEST_TIMEOUT", 30*time.Second),
		AutosaveLimit:  envInt("TAXFILE_AUTOSAVE_LIMIT", 30),
		AutosaveWindow: envDuration("TAXFILE_AUTOSAVE_WINDOW", time.Minute),
	}

	if hashes := os.Getenv("TAXFILE_ADMIN_KEY_HASHES"); hashes != "" {
		cfg.AdminKeyHashes = strings.Split(hashes, ",")
	}

	cfg.JWTSigningKey = os.Getenv("TAXFILE_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Development default; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("TAXFILE_REDIS_URL"),
		PoolSize:     envInt("TAXFILE_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("TAXFILE_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("TAXFILE_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("TAXFILE_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("TAXFILE_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("TAXFILE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.AuditTopic = envOr("TAXFILE_AUDIT_TOPIC", "taxfile.audit.v1")

	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
