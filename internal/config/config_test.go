package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/llm"
)

var managedKeys = []string{
	"CONFIG_FILE", "GEMINI_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "DATABASE_URL", "HTTP_PORT",
	"LOG_LEVEL", "LOG_FORMAT", "DEBUG_ERRORS", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
	"FALLBACK_EMBEDDING_PROVIDER", "FALLBACK_EMBEDDING_MODEL", "GENERATION_PROVIDER", "GENERATION_MODEL",
	"VECTOR_BACKEND", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "QDRANT_USE_TLS", "QDRANT_COLLECTION",
	"QDRANT_VECTOR_SIZE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "SUMMARY_CACHE_TTL", "KAFKA_BROKERS",
	"KAFKA_ANALYTICS_TOPIC", "KAFKA_ENABLED", "CASSANDRA_HOSTS", "CASSANDRA_KEYSPACE", "CASSANDRA_TIMEOUT",
	"CHUNK_SECONDS", "OVERLAP_SECONDS", "EMBED_BATCH_SIZE", "INDEX_CONCURRENCY", "TOP_K",
	"MAX_CONTEXT_TOKENS", "MAX_QUESTION_LENGTH",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, value) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "video_qa.db", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, 6334, cfg.Vector.QdrantPort)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.SummaryTTL)

	p := cfg.Pipeline()
	assert.Equal(t, llm.ProviderGemini, p.EmbeddingProvider)
	assert.Equal(t, llm.ProviderOpenAI, p.FallbackEmbeddingProvider)
	assert.Equal(t, llm.ProviderGemini, p.GenerationProvider)
	assert.Equal(t, 45.0, p.ChunkSeconds)
	assert.Equal(t, 12.0, p.OverlapSeconds)
	assert.Equal(t, 64, p.EmbedBatchSize)
	assert.Equal(t, 20, p.TopK)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("GENERATION_PROVIDER", "openai")
	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CASSANDRA_HOSTS", "cass-1,cass-2")
	t.Setenv("CHUNK_SECONDS", "60")
	t.Setenv("OVERLAP_SECONDS", "15.5")
	t.Setenv("DEBUG_ERRORS", "true")
	t.Setenv("TOP_K", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled, "brokers enable kafka unless KAFKA_ENABLED says otherwise")
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)

	p := cfg.Pipeline()
	assert.Equal(t, llm.ProviderOpenAI, p.EmbeddingProvider)
	assert.Equal(t, llm.ProviderOpenAI, p.GenerationProvider)
	assert.Equal(t, 60.0, p.ChunkSeconds)
	assert.Equal(t, 15.5, p.OverlapSeconds)
	assert.True(t, cfg.DebugErrors)
	assert.Equal(t, 20, p.TopK, "unparseable values keep the default")
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gemini_api_key: from-file
http_port: "9090"
vector:
  backend: memory
redis:
  addr: redis:6379
  summary_ttl: 30m
kafka:
  brokers: [kafka:9092]
  enabled: false
tuning:
  top_k: 8
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.GeminiAPIKey)
	assert.Equal(t, "7070", cfg.HTTPPort, "environment wins over the file")
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Redis.SummaryTTL)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 8, cfg.Pipeline().TopK)
	assert.Equal(t, "video_qa.db", cfg.DatabaseURL, "unset keys keep defaults")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing gemini key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"openai without key", func(c *Config) { c.Providers.GenerationProvider = "openai" }, "OPENAI_API_KEY"},
		{"unknown provider", func(c *Config) { c.Providers.EmbeddingProvider = "cohere" }, "EMBEDDING_PROVIDER"},
		{"unknown fallback", func(c *Config) { c.Providers.FallbackEmbeddingProvider = "cohere" }, "FALLBACK_EMBEDDING_PROVIDER"},
		{"bad backend", func(c *Config) { c.Vector.Backend = "faiss" }, "VECTOR_BACKEND"},
		{"overlap too large", func(c *Config) { c.Tuning.OverlapSeconds = 45 }, "OVERLAP_SECONDS"},
		{"zero vector size", func(c *Config) { c.Vector.VectorSize = 0 }, "QDRANT_VECTOR_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			cfg.GeminiAPIKey = "key"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
