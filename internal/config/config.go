package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector index backends.
const (
	VectorBackendQdrant = "qdrant"
	VectorBackendMemory = "memory"
)

// Bundle store backends.
const (
	BundleStoreSQLite = "sqlite"
	BundleStoreRedis  = "redis"
	BundleStoreMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBPath string

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string
	EmbeddingDim     int

	EmbeddingBaseURL   string
	EmbeddingModelName string
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string

	ChunkSize    int
	ChunkOverlap int

	CacheCapacity      int
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration

	MinConfidence     float64
	DefaultTopK       int
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	GenerationRPS     float64

	BundleStore string
	RedisURL    string
	BundleTTL   time.Duration

	DirectivesFile string
	OTLPEndpoint   string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the rest.
// A .env file in the current directory or a parent directory is loaded first;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	p := &parser{}
	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogLevel:  p.levelVar("LOG_LEVEL", slog.LevelInfo),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DBPath: getEnv("DB_PATH", "./data/sift.db"),

		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", VectorBackendQdrant)),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "sift_chunks"),
		EmbeddingDim:     p.intVar("EMBEDDING_DIM", 0),

		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),

		ChunkSize:    p.intVar("CHUNK_SIZE", 800),
		ChunkOverlap: p.intVar("CHUNK_OVERLAP", 120),

		CacheCapacity:      p.intVar("CACHE_CAPACITY", 1024),
		CacheTTL:           p.durationVar("CACHE_TTL", 10*time.Minute),
		CacheSweepInterval: p.durationVar("CACHE_SWEEP_INTERVAL", time.Minute),

		MinConfidence:     p.floatVar("MIN_CONFIDENCE", 0.25),
		DefaultTopK:       p.intVar("DEFAULT_TOP_K", 10),
		RetrievalTimeout:  p.durationVar("RETRIEVAL_TIMEOUT", 5*time.Second),
		GenerationTimeout: p.durationVar("GENERATION_TIMEOUT", 60*time.Second),
		GenerationRPS:     p.floatVar("GENERATION_RPS", 2),

		BundleStore: strings.ToLower(getEnv("BUNDLE_STORE", BundleStoreSQLite)),
		RedisURL:    getEnv("REDIS_URL", ""),
		BundleTTL:   p.durationVar("BUNDLE_TTL", 0),

		DirectivesFile: getEnv("DIRECTIVES_FILE", ""),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	// Must match the embedding model's output size; changing it requires recreating the collection.
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM is required and must be greater than 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.VectorBackend {
	case VectorBackendQdrant, VectorBackendMemory:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be qdrant or memory, got %q", c.VectorBackend)
	}
	switch c.BundleStore {
	case BundleStoreSQLite, BundleStoreMemory:
	case BundleStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when BUNDLE_STORE is redis")
		}
	default:
		return fmt.Errorf("BUNDLE_STORE must be sqlite, redis or memory, got %q", c.BundleStore)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap)
	}
	// Zero would be read as unset by the search service and replaced by its default.
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in (0, 1], got %v", c.MinConfidence)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("DEFAULT_TOP_K must be greater than 0")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be greater than 0")
	}
	return nil
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s has invalid value %q: %w", key, value, err)
	}
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) levelVar(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, v, err)
		return def
	}
	return l
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
