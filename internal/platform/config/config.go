package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "kycflow/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	PublicBaseURL string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	AdminToken    string
	LogLevel      string
	Redis         RedisConfig
	Postgres      PostgresConfig
	Upload        UploadConfig
	RateLimit     RateLimitConfig
}

// RateLimitConfig bounds draft saves and uploads per user. Writes <= 0
// disables the limit.
type RateLimitConfig struct {
	Writes int
	Window time.Duration
}

// RedisConfig configures the draft read-through cache. An empty URL disables
// it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DraftTTL     time.Duration
}

// PostgresConfig configures the draft and audit store. An empty URL selects
// the in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// UploadConfig configures attachment storage.
type UploadConfig struct {
	Dir          string
	MaxBytes     int64
	AllowedTypes []string
}

// Wizard configures the kycctl client.
type Wizard struct {
	BaseURL     string
	Token       string
	Debounce    time.Duration
	Timeout     time.Duration
	StateFile   string
	Concurrency int
	// MetricsFile, when set, receives the wizard metrics of each run in
	// Prometheus text format.
	MetricsFile string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := env("KYCFLOW_ADDR", ":8080")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		PublicBaseURL: strings.TrimRight(env("KYCFLOW_PUBLIC_URL", "http://localhost"+addr), "/"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     env("JWT_ISSUER", "kycflow"),
		JWTAudience:   env("JWT_AUDIENCE", "kycflow-wizard"),
		AdminToken:    os.Getenv("KYCFLOW_ADMIN_TOKEN"),
		LogLevel:      env("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DraftTTL:     envDuration("REDIS_DRAFT_TTL", 10*time.Minute),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Upload: UploadConfig{
			Dir:          env("UPLOAD_DIR", "./data/uploads"),
			MaxBytes:     int64(envInt("UPLOAD_MAX_BYTES", 10<<20)),
			AllowedTypes: pstrings.SplitList(env("UPLOAD_ALLOWED_TYPES", "image/jpeg,image/png,application/pdf"), ","),
		},
		RateLimit: RateLimitConfig{
			Writes: envInt("RATE_LIMIT_WRITES", 120),
			Window: envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// WizardFromEnv builds the kycctl configuration.
func WizardFromEnv() Wizard {
	return Wizard{
		BaseURL:     strings.TrimRight(env("KYCFLOW_URL", "http://localhost:8080"), "/"),
		Token:       os.Getenv("KYCFLOW_TOKEN"),
		Debounce:    envDuration("KYCFLOW_DEBOUNCE", time.Second),
		Timeout:     envDuration("KYCFLOW_TIMEOUT", 15*time.Second),
		StateFile:   env("KYCFLOW_STATE", ".kycctl.json"),
		Concurrency: envInt("KYCFLOW_UPLOAD_CONCURRENCY", 4),
		MetricsFile: os.Getenv("KYCFLOW_METRICS_FILE"),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
