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
)

const (
	// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// OpenRouterBaseURL is the OpenRouter chat completions root.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	DefaultEmbeddingModel   = "text-embedding-004"
	DefaultPrimaryModel     = "openrouter/auto"
	DefaultFallbackModel    = "gemini-1.5-flash"
	DefaultTopK             = 4
	DefaultMaxQueryLength   = 2000
	DefaultEmbeddingChars   = 2000
	DefaultEmbeddingRPM     = 60
	DefaultEmbeddingBatch   = 10
	DefaultEmbeddingPause   = time.Second
	DefaultCorpusPath       = "data/newsletters.txt"
	DefaultCachePath        = "data/embeddings_cache.json"
	DefaultQueryCacheSize   = 256
	DefaultQueryCacheTTL    = 30 * time.Minute
	DefaultIndexTimeout     = 15 * time.Minute
	DefaultBackendTimeout   = 60 * time.Second
	DefaultEmbeddingTimeout = 30 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Corpus        CorpusConfig
	Embedding     EmbeddingConfig
	Generation    GenerationConfig
	Retrieval     RetrievalConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// CorpusConfig locates the newsletter text and its embedding cache.
type CorpusConfig struct {
	Path      string
	CachePath string
}

// EmbeddingConfig holds the embedding backend configuration.
type EmbeddingConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerMin int
	BatchSize      int
	BatchPause     time.Duration
	MaxChars       int
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

// BackendConfig describes one chat completion backend
type BackendConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GenerationConfig holds the ordered answer backends.
type GenerationConfig struct {
	Primary     BackendConfig
	Fallback    BackendConfig
	PromptsFile string
	// Referer and AppTitle are sent to OpenRouter for attribution.
	Referer  string
	AppTitle string
}

// RetrievalConfig holds ranking and index settings
type RetrievalConfig struct {
	TopK           int
	MaxQueryLength int
	IndexTimeout   time.Duration
	WarmOnStart    bool
}

// AuditConfig enables the query log. Database is nil when DATABASE_URL is unset.
type AuditConfig struct {
	Enabled    bool
	Database   *DatabaseConfig
	Workers    int
	BufferSize int
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	geminiKey := getEnv("GEMINI_API_KEY", "")
	database := loadDatabaseConfig()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 110*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		},
		Corpus: CorpusConfig{
			Path:      getEnv("CORPUS_PATH", DefaultCorpusPath),
			CachePath: getEnv("CACHE_PATH", DefaultCachePath),
		},
		Embedding: EmbeddingConfig{
			APIKey:         getEnv("EMBEDDING_API_KEY", geminiKey),
			BaseURL:        getEnv("EMBEDDING_BASE_URL", GeminiOpenAIBaseURL),
			Model:          getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
			Timeout:        getEnvAsDuration("EMBEDDING_TIMEOUT", DefaultEmbeddingTimeout),
			MaxRetries:     getEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
			RequestsPerMin: getEnvAsInt("EMBEDDING_REQUESTS_PER_MINUTE", DefaultEmbeddingRPM),
			BatchSize:      getEnvAsInt("EMBEDDING_BATCH_SIZE", DefaultEmbeddingBatch),
			BatchPause:     getEnvAsDuration("EMBEDDING_BATCH_PAUSE", DefaultEmbeddingPause),
			MaxChars:       getEnvAsInt("EMBEDDING_MAX_CHARS", DefaultEmbeddingChars),
			QueryCacheSize: getEnvAsInt("QUERY_CACHE_SIZE", DefaultQueryCacheSize),
			QueryCacheTTL:  getEnvAsDuration("QUERY_CACHE_TTL", DefaultQueryCacheTTL),
		},
		Generation: GenerationConfig{
			Primary: BackendConfig{
				Name:    "openrouter",
				APIKey:  getEnv("OPENROUTER_API_KEY", ""),
				BaseURL: getEnv("OPENROUTER_BASE_URL", OpenRouterBaseURL),
				Model:   getEnv("OPENROUTER_MODEL", DefaultPrimaryModel),
				Timeout: getEnvAsDuration("OPENROUTER_TIMEOUT", DefaultBackendTimeout),
			},
			Fallback: BackendConfig{
				Name:    "gemini",
				APIKey:  geminiKey,
				BaseURL: getEnv("GEMINI_BASE_URL", GeminiOpenAIBaseURL),
				Model:   getEnv("GEMINI_MODEL", DefaultFallbackModel),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", DefaultBackendTimeout),
			},
			PromptsFile: getEnv("PROMPTS_FILE", ""),
			Referer:     getEnv("OPENROUTER_REFERER", ""),
			AppTitle:    getEnv("OPENROUTER_APP_TITLE", "Newsletter Assistant"),
		},
		Retrieval: RetrievalConfig{
			TopK:           getEnvAsInt("RETRIEVAL_TOP_K", DefaultTopK),
			MaxQueryLength: getEnvAsInt("MAX_QUERY_LENGTH", DefaultMaxQueryLength),
			IndexTimeout:   getEnvAsDuration("INDEX_TIMEOUT", DefaultIndexTimeout),
			WarmOnStart:    getEnvAsBool("WARM_INDEX_ON_START", false),
		},
		Audit: AuditConfig{
			Enabled:    database != nil && getEnvAsBool("AUDIT_ENABLED", true),
			Database:   database,
			Workers:    getEnvAsInt("AUDIT_WORKERS", 2),
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set.
// Missing credentials are not an error here: the service degrades at request time.
func (c *Config) Validate() error {
	if c.Corpus.Path == "" {
		return fmt.Errorf("corpus path is required")
	}
	if c.Corpus.CachePath == "" {
		return fmt.Errorf("cache path is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Embedding.MaxChars <= 0 {
		return fmt.Errorf("embedding max chars must be positive")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive")
	}
	if c.Embedding.RequestsPerMin <= 0 {
		return fmt.Errorf("embedding requests per minute must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive")
	}
	if c.Retrieval.MaxQueryLength <= 0 {
		return fmt.Errorf("max query length must be positive")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	if c.IsProduction() && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding API key is required in production")
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

// Configured reports whether the backend has a credential.
func (b BackendConfig) Configured() bool {
	return b.APIKey != ""
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	db := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
}

func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
