package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Brokers
	Broker BrokerConfig

	// Order processing
	Orders OrdersConfig

	// Coordinator caches
	Coordinator CoordinatorConfig

	// Rate limits
	RateLimit RateLimitConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// BrokerConfig holds venue connectivity settings
type BrokerConfig struct {
	Mode           string // paper, live
	Fallback       string // system fallback broker
	RoutingFile    string // YAML routing / capability overrides
	Timeout        time.Duration
	UpstoxBaseURL  string
	UpstoxToken    string
	PaperFillDelay time.Duration
}

// OrdersConfig holds batch placement rules
type OrdersConfig struct {
	StoreBackend     string // memory, postgres
	MaxBatchSize     int
	MaxCancelBatch   int
	MaintenanceStart string // HH:MM, exchange local time
	MaintenanceEnd   string
	ExchangeTimezone string
	AutoSlicing      bool
	RiskGateMode     string // off, shadow, enforce
	RetryTransient   bool   // re-place lines refused with a transient code
}

// CoordinatorConfig holds idempotency and read cache windows
type CoordinatorConfig struct {
	IdempotencyTTL time.Duration
	OrderBookTTL   time.Duration
	TradesDayTTL   time.Duration
	HistoryTTL     time.Duration
}

// RateLimitConfig holds outbound and inbound throttle ceilings
type RateLimitConfig struct {
	Standard      WindowLimits
	MultiOrder    WindowLimits
	UserPerMinute int
	IPPerMinute   int
}

// WindowLimits is a per-second / per-minute / per-30-minute ceiling triple
type WindowLimits struct {
	PerSecond int
	PerMinute int
	Per30Min  int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	standard, err := getEnvAsLimits("RATE_LIMIT_STANDARD", "50/500/2000")
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	multi, err := getEnvAsLimits("RATE_LIMIT_MULTI", "4/40/160")
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Broker: BrokerConfig{
			Mode:           strings.ToLower(getEnv("BROKER_MODE", "paper")),
			Fallback:       strings.ToUpper(getEnv("BROKER_FALLBACK", "UPSTOX")),
			RoutingFile:    getEnv("BROKER_ROUTING_FILE", ""),
			Timeout:        getEnvAsDuration("BROKER_TIMEOUT", "10s"),
			UpstoxBaseURL:  getEnv("UPSTOX_BASE_URL", "https://api.upstox.com/v2"),
			UpstoxToken:    getEnv("UPSTOX_ACCESS_TOKEN", ""),
			PaperFillDelay: getEnvAsDuration("PAPER_FILL_DELAY", "0s"),
		},

		Orders: OrdersConfig{
			StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", "memory")),
			MaxBatchSize:     getEnvAsInt("MAX_BATCH_SIZE", 25),
			MaxCancelBatch:   getEnvAsInt("MAX_CANCEL_BATCH", 50),
			MaintenanceStart: getEnv("MAINTENANCE_START", "00:00"),
			MaintenanceEnd:   getEnv("MAINTENANCE_END", "05:30"),
			ExchangeTimezone: getEnv("EXCHANGE_TIMEZONE", "Asia/Kolkata"),
			AutoSlicing:      getEnvAsBool("AUTO_SLICING", true),
			RiskGateMode:     strings.ToLower(getEnv("RISK_GATE_MODE", "shadow")),
			RetryTransient:   getEnvAsBool("ORDER_RETRY_TRANSIENT", false),
		},

		Coordinator: CoordinatorConfig{
			IdempotencyTTL: getEnvAsDuration("IDEMPOTENCY_TTL", "300s"),
			OrderBookTTL:   getEnvAsDuration("ORDER_BOOK_TTL", "2s"),
			TradesDayTTL:   getEnvAsDuration("TRADES_DAY_TTL", "5s"),
			HistoryTTL:     getEnvAsDuration("HISTORY_TTL", "60s"),
		},

		RateLimit: RateLimitConfig{
			Standard:      standard,
			MultiOrder:    multi,
			UserPerMinute: getEnvAsInt("API_USER_RATE_PER_MIN", 120),
			IPPerMinute:   getEnvAsInt("API_IP_RATE_PER_MIN", 300),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithFile loads path into the environment (existing variables win), then behaves like Load
func LoadWithFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// Location returns the exchange time zone used for the maintenance window
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Orders.ExchangeTimezone)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone %q: %w", c.Orders.ExchangeTimezone, err)
	}
	return loc, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Orders.StoreBackend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: memory, postgres")
	}

	if c.Broker.Mode != "paper" && c.Broker.Mode != "live" {
		return fmt.Errorf("BROKER_MODE must be one of: paper, live")
	}
	if c.Broker.Mode == "live" && c.Broker.UpstoxToken == "" {
		return fmt.Errorf("UPSTOX_ACCESS_TOKEN is required when BROKER_MODE=live")
	}

	switch c.Orders.RiskGateMode {
	case "off", "shadow", "enforce":
	default:
		return fmt.Errorf("RISK_GATE_MODE must be one of: off, shadow, enforce")
	}

	if _, err := time.Parse("15:04", c.Orders.MaintenanceStart); err != nil {
		return fmt.Errorf("MAINTENANCE_START must be HH:MM: %w", err)
	}
	if _, err := time.Parse("15:04", c.Orders.MaintenanceEnd); err != nil {
		return fmt.Errorf("MAINTENANCE_END must be HH:MM: %w", err)
	}

	if c.Orders.MaxBatchSize <= 0 || c.Orders.MaxCancelBatch <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE and MAX_CANCEL_BATCH must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsLimits parses "second/minute/30min" ceilings, e.g. "50/500/2000"
func getEnvAsLimits(key string, defaultValue string) (WindowLimits, error) {
	raw := getEnv(key, defaultValue)
	limits, err := ParseWindowLimits(raw)
	if err != nil {
		return WindowLimits{}, fmt.Errorf("%s: %w", key, err)
	}
	return limits, nil
}

// ParseWindowLimits parses a "second/minute/30min" triple
func ParseWindowLimits(raw string) (WindowLimits, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return WindowLimits{}, fmt.Errorf("expected per-second/per-minute/per-30min, got %q", raw)
	}

	values := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return WindowLimits{}, fmt.Errorf("invalid limit %q in %q", p, raw)
		}
		values[i] = v
	}

	if values[0] > values[1] || values[1] > values[2] {
		return WindowLimits{}, fmt.Errorf("limits must not shrink with wider windows: %q", raw)
	}

	return WindowLimits{PerSecond: values[0], PerMinute: values[1], Per30Min: values[2]}, nil
}
