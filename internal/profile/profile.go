package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the retrieval server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where nu-agent stores conversation summaries and retrieval logs
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Embedding configuration
	AIEmbeddingProvider   string // NU_AGENT_AI_EMBEDDING_PROVIDER (default: openai)
	AIEmbeddingModel      string // NU_AGENT_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDimensions int    // NU_AGENT_AI_EMBEDDING_DIMENSIONS (default: 1536)
	AIOpenAIAPIKey        string // NU_AGENT_AI_OPENAI_API_KEY
	AIOpenAIBaseURL       string // NU_AGENT_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AISiliconFlowAPIKey   string // NU_AGENT_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL  string // NU_AGENT_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIOllamaBaseURL       string // NU_AGENT_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)

	// Retrieval cache configuration
	RAGCacheEnabled         bool          // NU_AGENT_RAG_CACHE_ENABLED (default: true)
	RAGCacheMaxSize         int           // NU_AGENT_RAG_CACHE_MAX_SIZE (default: 100)
	RAGCacheTTL             time.Duration // NU_AGENT_RAG_CACHE_TTL (default: 1h)
	RAGCacheCleanupInterval time.Duration // NU_AGENT_RAG_CACHE_CLEANUP_INTERVAL (default: 5m)
	RAGCacheRedisAddr       string        // NU_AGENT_RAG_CACHE_REDIS_ADDR; empty keeps the cache in process
	RAGCacheRedisPassword   string        // NU_AGENT_RAG_CACHE_REDIS_PASSWORD
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingConfigured reports whether an embedding backend can be reached.
func (p *Profile) IsEmbeddingConfigured() bool {
	switch p.AIEmbeddingProvider {
	case "ollama":
		return p.AIOllamaBaseURL != ""
	case "siliconflow":
		return p.AISiliconFlowAPIKey != ""
	default:
		return p.AIOpenAIAPIKey != ""
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads the embedding and cache configuration from NU_AGENT_* environment variables.
func (p *Profile) FromEnv() {
	p.AIEmbeddingProvider = getEnvWithDefault("NU_AGENT_AI_EMBEDDING_PROVIDER", "openai")
	p.AIEmbeddingModel = getEnvWithDefault("NU_AGENT_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDimensions = getIntEnvWithDefault("NU_AGENT_AI_EMBEDDING_DIMENSIONS", 1536)
	p.AIOpenAIAPIKey = os.Getenv("NU_AGENT_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvWithDefault("NU_AGENT_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AISiliconFlowAPIKey = os.Getenv("NU_AGENT_AI_SILICONFLOW_API_KEY")
	p.AISiliconFlowBaseURL = getEnvWithDefault("NU_AGENT_AI_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AIOllamaBaseURL = getEnvWithDefault("NU_AGENT_AI_OLLAMA_BASE_URL", "http://localhost:11434/v1")

	p.RAGCacheEnabled = getEnvWithDefault("NU_AGENT_RAG_CACHE_ENABLED", "true") == "true"
	p.RAGCacheMaxSize = getIntEnvWithDefault("NU_AGENT_RAG_CACHE_MAX_SIZE", 100)
	p.RAGCacheTTL = getDurationEnvWithDefault("NU_AGENT_RAG_CACHE_TTL", time.Hour)
	p.RAGCacheCleanupInterval = getDurationEnvWithDefault("NU_AGENT_RAG_CACHE_CLEANUP_INTERVAL", 5*time.Minute)
	p.RAGCacheRedisAddr = os.Getenv("NU_AGENT_RAG_CACHE_REDIS_ADDR")
	p.RAGCacheRedisPassword = os.Getenv("NU_AGENT_RAG_CACHE_REDIS_PASSWORD")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("nu_agent_%s.db", p.Mode))
	}
	return nil
}
