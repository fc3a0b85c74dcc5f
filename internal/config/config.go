package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPAddr    string
	GinMode     string
	Timezone    *time.Location

	Store      string
	DBDSN      string
	DBMaxConns int32

	MigrationsEnabled bool

	RedisURL          string
	RateLimitCapacity int
	RateLimitRefill   int
	RateLimitInterval time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	TelegramToken string

	JWTSecret      string
	AllowedOrigins []string

	EnforceTutorConflicts bool
	SchedulerInterval     time.Duration
	AutoCompleteBookings  bool
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		GinMode:     getEnv("GIN_MODE", ""),
		Timezone:    loc,

		Store:      strings.ToLower(getEnv("STORE", StorePostgres)),
		DBDSN:      os.Getenv("DB_DSN"),
		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 16)),

		MigrationsEnabled: getEnvBool("MIGRATIONS_ENABLED", true),

		RedisURL:          os.Getenv("REDIS_URL"),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 30),
		RateLimitRefill:   getEnvInt("RATE_LIMIT_REFILL", 30),
		RateLimitInterval: getEnvDuration("RATE_LIMIT_INTERVAL", time.Minute),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tutorbook.events"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "tutorbook.notifier"),

		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		EnforceTutorConflicts: getEnvBool("ENFORCE_TUTOR_CONFLICTS", true),
		SchedulerInterval:     getEnvDuration("SCHEDULER_INTERVAL", 5*time.Minute),
		AutoCompleteBookings:  getEnvBool("AUTO_COMPLETE_BOOKINGS", true),
	}

	if cfg.GinMode == "" {
		cfg.GinMode = "debug"
		if cfg.IsProduction() {
			cfg.GinMode = "release"
		}
	}

	log.Printf("Config loaded (env=%s, store=%s)\n", cfg.Environment, cfg.Store)

	return cfg, nil
}

// ValidateServer checks the settings the HTTP server cannot start without.
func (c *Config) ValidateServer() error {
	switch c.Store {
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitRefill <= 0 || c.RateLimitInterval <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}

// ValidateNotifier checks the settings the notifier cannot start without.
func (c *Config) ValidateNotifier() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required but not set")
	}
	if c.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required but not set")
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required but not set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %d\n", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %t\n", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %s\n", key, v, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
