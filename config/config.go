package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Retrieval     RetrievalConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds the whole ask pipeline, including the
	// generation call shared by singleflight waiters.
	RequestTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// RetrievalConfig holds retrieval defaults applied at the request boundary
type RetrievalConfig struct {
	DefaultK                int
	DefaultMaxContextTokens int
	SnippetLength           int
}

// ProvidersConfig holds external provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// ModelPricing holds per-1K-token prices for a model
type ModelPricing struct {
	PromptPer1K     decimal.Decimal
	CompletionPer1K decimal.Decimal
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Model          string // default generation model
	EmbeddingModel string
	Pricing        map[string]ModelPricing
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		},
		Database: loadDatabaseConfig(),
		Cache: CacheConfig{
			TTL:        getEnvAsDuration("CACHE_TTL", 600*time.Second),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
		},
		Retrieval: RetrievalConfig{
			DefaultK:                getEnvAsInt("RETRIEVAL_DEFAULT_K", 5),
			DefaultMaxContextTokens: getEnvAsInt("RETRIEVAL_DEFAULT_CONTEXT_TOKENS", 2000),
			SnippetLength:           getEnvAsInt("RETRIEVAL_SNIPPET_LENGTH", 350),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:         getEnv("OPENAI_API_KEY", ""),
				BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:        getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries:     getEnvAsInt("OPENAI_MAX_RETRIES", 3),
				Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
				Pricing:        loadPricing(),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Retrieval.DefaultK < 1 || c.Retrieval.DefaultK > 20 {
		return fmt.Errorf("default k must be between 1 and 20")
	}
	if c.Retrieval.DefaultMaxContextTokens < 100 {
		return fmt.Errorf("default context token budget must be at least 100")
	}

	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("generation provider API key is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// PricingFor returns the pricing entry for a model, falling back to the
// default model's pricing when the model is unknown.
func (c *OpenAIConfig) PricingFor(model string) ModelPricing {
	if p, ok := c.Pricing[model]; ok {
		return p
	}
	return c.Pricing[c.Model]
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "legalrag"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadPricing loads the per-model pricing table. Prices are per 1K tokens.
func loadPricing() map[string]ModelPricing {
	defaultIn := getEnvAsDecimal("OPENAI_PRICE_IN", decimal.RequireFromString("0.30"))
	defaultOut := getEnvAsDecimal("OPENAI_PRICE_OUT", decimal.RequireFromString("1.20"))

	return map[string]ModelPricing{
		"gpt-4o-mini": {
			PromptPer1K:     defaultIn,
			CompletionPer1K: defaultOut,
		},
		"gpt-4o": {
			PromptPer1K:     decimal.RequireFromString("2.50"),
			CompletionPer1K: decimal.RequireFromString("10.00"),
		},
		"gpt-4.1-mini": {
			PromptPer1K:     decimal.RequireFromString("0.40"),
			CompletionPer1K: decimal.RequireFromString("1.60"),
		},
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
