package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8082"`

	// DBDriver selects the store: mysql, sqlite or memory.
	DBDriver         string `env:"DB_DRIVER" envDefault:"mysql"`
	DBHost           string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort           string `env:"DB_PORT" envDefault:"3306"`
	DBUser           string `env:"DB_USER" envDefault:"root"`
	DBPass           string `env:"DB_PASS"`
	DBName           string `env:"DB_NAME" envDefault:"order-db"`
	DBConnectRetries int    `env:"DB_CONNECT_RETRIES" envDefault:"10"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"orders.db"`

	// Empty RedisAddr disables idempotency keys, the stock cache and the shared sequence.
	RedisAddr string `env:"REDIS_ADDR"`
	// Empty KafkaBrokers disables lifecycle events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"order-topic"`

	OrderIDScheme  string `env:"ORDER_ID_SCHEME" envDefault:"random"`
	OrderIDPrefix  string `env:"ORDER_ID_PREFIX" envDefault:"ORD"`
	PhoneRegion    string `env:"PHONE_REGION" envDefault:"US"`
	CreditTermDays int    `env:"CREDIT_TERM_DAYS" envDefault:"15"`

	JWTSecret string  `env:"JWT_SECRET"`
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst int     `env:"RATE_BURST" envDefault:"30"`

	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	StockCacheTTL  time.Duration `env:"STOCK_CACHE_TTL" envDefault:"30s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql, sqlite or memory, got %q", c.DBDriver)
	}
	switch c.OrderIDScheme {
	case "random", "sequence":
	default:
		return fmt.Errorf("ORDER_ID_SCHEME must be random or sequence, got %q", c.OrderIDScheme)
	}
	if strings.TrimSpace(c.OrderIDPrefix) == "" {
		return fmt.Errorf("ORDER_ID_PREFIX must not be empty")
	}
	if c.CreditTermDays <= 0 {
		return fmt.Errorf("CREDIT_TERM_DAYS must be positive")
	}
	return nil
}

// CreditTerm is how long a credit order has before it is overdue when no due date is given.
func (c *Config) CreditTerm() time.Duration {
	return time.Duration(c.CreditTermDays) * 24 * time.Hour
}
