// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/supportdesk/internal/llm"
	"github.com/capitalize-ai/supportdesk/internal/rag"
	"github.com/capitalize-ai/supportdesk/internal/service"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	RequestTimeout     time.Duration

	// Database settings. An empty URL runs on in-memory stores.
	DatabaseURL   string
	DBAutoMigrate bool

	// Workspace served by the in-memory stores.
	DemoWorkspaceID   string
	DemoWorkspaceName string
	DemoWorkspaceKey  string

	// Redis embedding cache. Disabled when the URL is empty.
	RedisURL          string
	EmbeddingCacheTTL time.Duration

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	LLMProvider     llm.Provider
	LLMBaseURL      string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Embedding settings
	EmbeddingModel      string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Rate limiting
	RateLimitRequests       int
	RateLimitWindow         time.Duration
	WidgetRateLimitRequests int
	WidgetRateLimitWindow   time.Duration

	// CORS
	DashboardOrigins []string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Pipeline tuning, overridable from CONFIG_FILE.
	RAG      rag.Options
	Chunking service.ChunkingOptions
}

// fileConfig is the layout of the optional YAML file named by CONFIG_FILE.
type fileConfig struct {
	RAG      rag.Options             `yaml:"rag"`
	Chunking service.ChunkingOptions `yaml:"chunking"`
}

// Load reads configuration from a .env file if present, the environment and
// the optional YAML file named by CONFIG_FILE. Environment values win over
// the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDurationEnv("GENERATION_TIMEOUT", 60*time.Second),

		// Database
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),

		DemoWorkspaceID:   getEnv("DEMO_WORKSPACE_ID", "demo"),
		DemoWorkspaceName: getEnv("DEMO_WORKSPACE_NAME", "Demo"),
		DemoWorkspaceKey:  getEnv("DEMO_WORKSPACE_KEY", "pk_demo"),

		// Redis
		RedisURL:          getEnv("REDIS_URL", ""),
		EmbeddingCacheTTL: getDurationEnv("EMBEDDING_CACHE_TTL", 24*time.Hour),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// LLM
		LLMProvider:     llm.Provider(getEnv("LLM_PROVIDER", string(llm.ProviderOpenAI))),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Embedding
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingDimensions: getIntEnv("EMBEDDING_DIMENSIONS", 1536),

		// Rate limiting
		RateLimitRequests:       getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:         getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WidgetRateLimitRequests: getIntEnv("WIDGET_RATE_LIMIT_REQUESTS", 20),
		WidgetRateLimitWindow:   getDurationEnv("WIDGET_RATE_LIMIT_WINDOW", time.Minute),

		// CORS
		DashboardOrigins: getListEnv("DASHBOARD_ORIGINS"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		RAG:      rag.DefaultOptions(),
		Chunking: service.DefaultChunkingOptions(),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if model := getEnv("LLM_MODEL", ""); model != "" {
		cfg.RAG.Model = model
	}
	cfg.RAG.EscalationThreshold = getFloatEnv("RAG_ESCALATION_THRESHOLD", cfg.RAG.EscalationThreshold)
	cfg.RAG.ExtraIndicators = append(cfg.RAG.ExtraIndicators, getListEnv("RAG_EXTRA_INDICATORS")...)
	cfg.RAG = cfg.RAG.WithDefaults()

	return cfg, nil
}

// loadFile overlays the YAML file at path onto the pipeline settings. Keys
// missing from the file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fc := fileConfig{RAG: c.RAG, Chunking: c.Chunking}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.RAG = fc.RAG
	c.Chunking = fc.Chunking
	return nil
}

// LLMAPIKey returns the API key of the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == llm.ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
