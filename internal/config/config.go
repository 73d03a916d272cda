package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the persona service and workers.
// Environment variables are parsed with the PERSONA_ prefix,
// e.g. PERSONA_DB_DRIVER, PERSONA_WEAVIATE_URL.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Relational store: sqlite | postgres
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"persona.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Vector index: weaviate | memory. WeaviateURL is host:port without scheme.
	SearchBackend string `envconfig:"SEARCH_BACKEND" default:"weaviate"`
	WeaviateURL   string `envconfig:"WEAVIATE_URL" default:"localhost:8081"`
	WeaviateClass string `envconfig:"WEAVIATE_CLASS" default:"ContentChunk"`

	// Embeddings: ollama | openai. Ingestion and retrieval share this setting.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// Chat model (OpenAI-compatible endpoint)
	OpenAIAPIKey    string  `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL   string  `envconfig:"OPENAI_BASE_URL" default:""`
	ChatModel       string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	ChatTemperature float32 `envconfig:"CHAT_TEMPERATURE" default:"0.3"`

	// Chunking and retrieval
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`
	TopK         int `envconfig:"TOP_K" default:"5"`

	// Profile directory cache: memory | redis
	ProfileCache    string        `envconfig:"PROFILE_CACHE" default:"memory"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"5m"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Max concurrent responders per trigger (0 = unbounded)
	FanOutLimit int `envconfig:"FANOUT_LIMIT" default:"0"`

	// Ingestion worker
	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"30s"`
	IngestOnce     bool          `envconfig:"INGEST_ONCE" default:"false"`

	// Health probing
	HealthInterval     time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`
	HealthProbeTimeout time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"2s"`
}

// ResolveDefaults validates enumerated settings and normalises numeric ones.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for DB_DRIVER=sqlite")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.SearchBackend {
	case "weaviate":
		if c.WeaviateURL == "" {
			return fmt.Errorf("WEAVIATE_URL is required for SEARCH_BACKEND=weaviate")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported SEARCH_BACKEND: %s", c.SearchBackend)
	}

	switch c.EmbedProvider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %s", c.EmbedProvider)
	}

	switch c.ProfileCache {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported PROFILE_CACHE: %s", c.ProfileCache)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.FanOutLimit < 0 {
		c.FanOutLimit = 0
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	return nil
}

// New creates a new Config by parsing PERSONA_* environment variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("PERSONA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Str("search_backend", cfg.SearchBackend).
		Str("weaviate_url", cfg.WeaviateURL).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Str("chat_model", cfg.ChatModel).
		Float32("chat_temperature", cfg.ChatTemperature).
		Int("chunk_size", cfg.ChunkSize).
		Int("chunk_overlap", cfg.ChunkOverlap).
		Str("profile_cache", cfg.ProfileCache).
		Bool("openai_key_present", cfg.OpenAIAPIKey != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:     EnvTesting,
		LogLevel:        "debug",
		HTTPPort:        8080,
		DBDriver:        "sqlite",
		SQLitePath:      ":memory:",
		SearchBackend:   "memory",
		WeaviateURL:     "localhost:8082",
		WeaviateClass:   "ContentChunkTest",
		EmbedProvider:   "ollama",
		EmbedModel:      "nomic-embed-text",
		OllamaURL:       "http://localhost:11434",
		ChatModel:       "gpt-4o-mini",
		ChatTemperature: 0.3,
		ChunkSize:       1000,
		ChunkOverlap:    200,
		TopK:            5,
		ProfileCache:    "memory",
		ProfileCacheTTL: time.Minute,
		IngestInterval:  time.Second,
		IngestOnce:      true,
		HealthInterval:  time.Second,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
