package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the process configuration and the hot-reloaded billing tunables.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	FrontendURL string

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
	OTLPProtocol string
	OtelEnabled  bool

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQueryMS     int

	// SeedDefaults inserts the stock plans and settings after migrating.
	SeedDefaults bool

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Lock      LockConfig

	Payment PaymentConfig

	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig throttles checkout link creation per tenant. It is only
// enforced when Redis is configured.
type RateLimitConfig struct {
	Enabled       bool
	CheckoutRate  float64
	CheckoutBurst int
}

type LockConfig struct {
	TTLSeconds     int
	WaitTimeoutMS  int
	RetryBackoffMS int
}

type PaymentConfig struct {
	Provider string
	PayOS    PayOSConfig
	Stripe   StripeConfig
}

type PayOSConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type SchedulerConfig struct {
	Enabled        bool
	ExpirySchedule string
	ReportSchedule string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "petlog"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		FrontendURL:       strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "petlog"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryMS:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),
		SeedDefaults:      getenvBool("SEED_DEFAULTS", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst: getenvInt("RATE_LIMIT_CHECKOUT_BURST", 5),
		},
		Lock: LockConfig{
			TTLSeconds:     getenvInt("LOCK_TTL_SECONDS", 30),
			WaitTimeoutMS:  getenvInt("LOCK_WAIT_TIMEOUT_MS", 5000),
			RetryBackoffMS: getenvInt("LOCK_RETRY_BACKOFF_MS", 50),
		},
		Payment: PaymentConfig{
			Provider: strings.ToLower(strings.TrimSpace(getenv("PAYMENT_PROVIDER", "payos"))),
			PayOS: PayOSConfig{
				ClientID:    strings.TrimSpace(getenv("PAYOS_CLIENT_ID", "")),
				APIKey:      strings.TrimSpace(getenv("PAYOS_API_KEY", "")),
				ChecksumKey: strings.TrimSpace(getenv("PAYOS_CHECKSUM_KEY", "")),
				BaseURL:     strings.TrimRight(getenv("PAYOS_BASE_URL", "https://api-merchant.payos.vn"), "/"),
			},
			Stripe: StripeConfig{
				SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
				WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
				Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "vnd")),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			ExpirySchedule: getenv("SCHEDULER_EXPIRY_SCHEDULE", "@hourly"),
			ReportSchedule: getenv("SCHEDULER_REPORT_SCHEDULE", "0 8 * * *"),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
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
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
