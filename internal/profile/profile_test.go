package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"NU_AGENT_AI_EMBEDDING_PROVIDER",
	"NU_AGENT_AI_EMBEDDING_MODEL",
	"NU_AGENT_AI_EMBEDDING_DIMENSIONS",
	"NU_AGENT_AI_OPENAI_API_KEY",
	"NU_AGENT_AI_OPENAI_BASE_URL",
	"NU_AGENT_AI_SILICONFLOW_API_KEY",
	"NU_AGENT_AI_SILICONFLOW_BASE_URL",
	"NU_AGENT_AI_OLLAMA_BASE_URL",
	"NU_AGENT_RAG_CACHE_ENABLED",
	"NU_AGENT_RAG_CACHE_MAX_SIZE",
	"NU_AGENT_RAG_CACHE_TTL",
	"NU_AGENT_RAG_CACHE_CLEANUP_INTERVAL",
	"NU_AGENT_RAG_CACHE_REDIS_ADDR",
	"NU_AGENT_RAG_CACHE_REDIS_PASSWORD",
}

func clearEnv(t *testing.T) {
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.AIEmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", p.AIEmbeddingModel)
	assert.Equal(t, 1536, p.AIEmbeddingDimensions)
	assert.Equal(t, "https://api.openai.com/v1", p.AIOpenAIBaseURL)
	assert.True(t, p.RAGCacheEnabled)
	assert.Equal(t, 100, p.RAGCacheMaxSize)
	assert.Equal(t, time.Hour, p.RAGCacheTTL)
	assert.Equal(t, 5*time.Minute, p.RAGCacheCleanupInterval)
	assert.Empty(t, p.RAGCacheRedisAddr)
	assert.False(t, p.IsEmbeddingConfigured())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NU_AGENT_AI_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("NU_AGENT_AI_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("NU_AGENT_RAG_CACHE_ENABLED", "false")
	t.Setenv("NU_AGENT_RAG_CACHE_MAX_SIZE", "25")
	t.Setenv("NU_AGENT_RAG_CACHE_TTL", "90s")
	t.Setenv("NU_AGENT_RAG_CACHE_REDIS_ADDR", "localhost:6379")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "ollama", p.AIEmbeddingProvider)
	assert.Equal(t, 768, p.AIEmbeddingDimensions)
	assert.False(t, p.RAGCacheEnabled)
	assert.Equal(t, 25, p.RAGCacheMaxSize)
	assert.Equal(t, 90*time.Second, p.RAGCacheTTL)
	assert.Equal(t, "localhost:6379", p.RAGCacheRedisAddr)
	assert.True(t, p.IsEmbeddingConfigured())
}

func TestFromEnvInvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("NU_AGENT_RAG_CACHE_MAX_SIZE", "lots")
	t.Setenv("NU_AGENT_RAG_CACHE_TTL", "forever")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 100, p.RAGCacheMaxSize)
	assert.Equal(t, time.Hour, p.RAGCacheTTL)
}

func TestValidate(t *testing.T) {
	t.Run("SQLiteDefaultsDSN", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "sqlite", p.Driver)
		assert.Contains(t, p.DSN, "nu_agent_dev.db")
	})

	t.Run("UnknownModeBecomesDemo", func(t *testing.T) {
		p := &Profile{Mode: "weird", Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("UnsupportedDriver", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "mysql"}
		assert.Error(t, p.Validate())
	})

	t.Run("MissingDataDir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: "/definitely/not/here"}
		assert.Error(t, p.Validate())
	})
}
