package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GatewayStripe = "stripe"
	GatewayFake   = "fake"
)

type Config struct {
	// Server
	HTTPPort        string
	GRPCPort        string
	Environment     string
	ShutdownTimeout time.Duration

	// Storage
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AutoMigrate   bool

	// Auth
	JWTSecret string

	// Payments
	GatewayMode     string
	StripeSecretKey string
	Currency        string

	// Notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	KafkaBrokers []string
	KafkaTopic   string

	// Observability
	OTelEndpoint string

	// Purchase lifecycle
	ReconcileInterval time.Duration
	AttemptTTL        time.Duration
	IdempotencyTTL    time.Duration
}

// Load reads the environment, after an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50051"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", "10s"),

		MySQLDSN:      getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/tickets?parseTime=true"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		AutoMigrate:   getEnvAsBool("AUTO_MIGRATE", true),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GatewayMode:     getEnv("GATEWAY_MODE", GatewayStripe),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		Currency:        strings.ToLower(getEnv("CURRENCY", "inr")),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@ticket-marketplace.local"),
		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ticket-events"),

		OTelEndpoint: getEnv("OTEL_ENDPOINT", ""),

		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "1m"),
		AttemptTTL:        getEnvAsDuration("ATTEMPT_TTL", "1h"),
		IdempotencyTTL:    getEnvAsDuration("IDEMPOTENCY_TTL", "24h"),
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.GatewayMode {
	case GatewayStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when GATEWAY_MODE=stripe"))
		}
	case GatewayFake:
	default:
		errs = append(errs, errors.New("GATEWAY_MODE must be stripe or fake"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
