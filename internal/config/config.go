package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"gwi.com/video-qa/internal/core"
	"gwi.com/video-qa/internal/llm"
)

type ProviderConfig struct {
	EmbeddingProvider         string `yaml:"embedding_provider"`
	EmbeddingModel            string `yaml:"embedding_model"`
	FallbackEmbeddingProvider string `yaml:"fallback_embedding_provider"`
	FallbackEmbeddingModel    string `yaml:"fallback_embedding_model"`
	GenerationProvider        string `yaml:"generation_provider"`
	GenerationModel           string `yaml:"generation_model"`
}

type VectorConfig struct {
	Backend      string `yaml:"backend"` // qdrant or memory
	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	QdrantUseTLS bool   `yaml:"qdrant_use_tls"`
	Collection   string `yaml:"collection"`
	VectorSize   int    `yaml:"vector_size"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"` // empty disables the cache
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SummaryTTL time.Duration `yaml:"summary_ttl"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Enabled bool     `yaml:"enabled"`
}

type CassandraConfig struct {
	Hosts    []string      `yaml:"hosts"`
	Keyspace string        `yaml:"keyspace"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TuningConfig struct {
	ChunkSeconds      float64 `yaml:"chunk_seconds"`
	OverlapSeconds    float64 `yaml:"overlap_seconds"`
	EmbedBatchSize    int     `yaml:"embed_batch_size"`
	IndexConcurrency  int     `yaml:"index_concurrency"`
	TopK              int     `yaml:"top_k"`
	MaxContextTokens  int     `yaml:"max_context_tokens"`
	MaxQuestionLength int     `yaml:"max_question_length"`
}

type Config struct {
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	DatabaseURL   string `yaml:"database_url"`
	HTTPPort      string `yaml:"http_port"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	DebugErrors   bool   `yaml:"debug_errors"`

	Providers ProviderConfig  `yaml:"providers"`
	Vector    VectorConfig    `yaml:"vector"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Cassandra CassandraConfig `yaml:"cassandra"`
	Tuning    TuningConfig    `yaml:"tuning"`
}

func defaults() Config {
	return Config{
		OpenAIBaseURL: llm.DefaultOpenAIBaseURL,
		DatabaseURL:   "video_qa.db",
		HTTPPort:      "8080",
		LogLevel:      "INFO",
		LogFormat:     "json",
		Providers: ProviderConfig{
			EmbeddingProvider:         string(llm.ProviderGemini),
			EmbeddingModel:            llm.DefaultGeminiEmbeddingModel,
			FallbackEmbeddingProvider: string(llm.ProviderOpenAI),
			FallbackEmbeddingModel:    llm.DefaultOpenAIEmbeddingModel,
			GenerationProvider:        string(llm.ProviderGemini),
			GenerationModel:           llm.DefaultGeminiChatModel,
		},
		Vector: VectorConfig{
			Backend:    "qdrant",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "video_transcript_chunks",
			VectorSize: 768,
		},
		Redis: RedisConfig{SummaryTTL: 24 * time.Hour},
		Kafka: KafkaConfig{Topic: "video-qa.analytics"},
		Cassandra: CassandraConfig{
			Keyspace: "video_qa",
			Timeout:  10 * time.Second,
		},
		Tuning: TuningConfig{
			ChunkSeconds:      core.DefaultPipelineConfig().ChunkSeconds,
			OverlapSeconds:    core.DefaultPipelineConfig().OverlapSeconds,
			EmbedBatchSize:    core.DefaultEmbedBatchSize,
			IndexConcurrency:  core.DefaultIndexConcurrency,
			TopK:              core.DefaultTopK,
			MaxContextTokens:  core.DefaultMaxContextTokens,
			MaxQuestionLength: core.DefaultMaxQuestionLength,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil { // Load .env file if it exists
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.DebugErrors = getEnvAsBool("DEBUG_ERRORS", cfg.DebugErrors)

	p := &cfg.Providers
	p.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", p.EmbeddingProvider)
	p.EmbeddingModel = getEnv("EMBEDDING_MODEL", p.EmbeddingModel)
	p.FallbackEmbeddingProvider = getEnv("FALLBACK_EMBEDDING_PROVIDER", p.FallbackEmbeddingProvider)
	p.FallbackEmbeddingModel = getEnv("FALLBACK_EMBEDDING_MODEL", p.FallbackEmbeddingModel)
	p.GenerationProvider = getEnv("GENERATION_PROVIDER", p.GenerationProvider)
	p.GenerationModel = getEnv("GENERATION_MODEL", p.GenerationModel)

	v := &cfg.Vector
	v.Backend = getEnv("VECTOR_BACKEND", v.Backend)
	v.QdrantHost = getEnv("QDRANT_HOST", v.QdrantHost)
	v.QdrantPort = getEnvAsInt("QDRANT_PORT", v.QdrantPort)
	v.QdrantAPIKey = getEnv("QDRANT_API_KEY", v.QdrantAPIKey)
	v.QdrantUseTLS = getEnvAsBool("QDRANT_USE_TLS", v.QdrantUseTLS)
	v.Collection = getEnv("QDRANT_COLLECTION", v.Collection)
	v.VectorSize = getEnvAsInt("QDRANT_VECTOR_SIZE", v.VectorSize)

	r := &cfg.Redis
	r.Addr = getEnv("REDIS_ADDR", r.Addr)
	r.Password = getEnv("REDIS_PASSWORD", r.Password)
	r.DB = getEnvAsInt("REDIS_DB", r.DB)
	r.SummaryTTL = getEnvAsDuration("SUMMARY_CACHE_TTL", r.SummaryTTL)

	k := &cfg.Kafka
	if _, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		k.Brokers = getEnvAsList("KAFKA_BROKERS", k.Brokers)
		// Brokers given in the environment switch publishing on.
		k.Enabled = len(k.Brokers) > 0
	}
	k.Topic = getEnv("KAFKA_ANALYTICS_TOPIC", k.Topic)
	k.Enabled = getEnvAsBool("KAFKA_ENABLED", k.Enabled)

	c := &cfg.Cassandra
	c.Hosts = getEnvAsList("CASSANDRA_HOSTS", c.Hosts)
	c.Keyspace = getEnv("CASSANDRA_KEYSPACE", c.Keyspace)
	c.Timeout = getEnvAsDuration("CASSANDRA_TIMEOUT", c.Timeout)

	t := &cfg.Tuning
	t.ChunkSeconds = getEnvAsFloat("CHUNK_SECONDS", t.ChunkSeconds)
	t.OverlapSeconds = getEnvAsFloat("OVERLAP_SECONDS", t.OverlapSeconds)
	t.EmbedBatchSize = getEnvAsInt("EMBED_BATCH_SIZE", t.EmbedBatchSize)
	t.IndexConcurrency = getEnvAsInt("INDEX_CONCURRENCY", t.IndexConcurrency)
	t.TopK = getEnvAsInt("TOP_K", t.TopK)
	t.MaxContextTokens = getEnvAsInt("MAX_CONTEXT_TOKENS", t.MaxContextTokens)
	t.MaxQuestionLength = getEnvAsInt("MAX_QUESTION_LENGTH", t.MaxQuestionLength)
}

// Validate checks provider names and that every provider in use has credentials.
func (c *Config) Validate() error {
	var errs []error

	used := map[llm.Provider]bool{}
	for name, value := range map[string]string{
		"EMBEDDING_PROVIDER":  c.Providers.EmbeddingProvider,
		"GENERATION_PROVIDER": c.Providers.GenerationProvider,
	} {
		p, err := llm.ParseProvider(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		used[p] = true
	}
	if c.Providers.FallbackEmbeddingProvider != "" {
		if _, err := llm.ParseProvider(c.Providers.FallbackEmbeddingProvider); err != nil {
			errs = append(errs, fmt.Errorf("FALLBACK_EMBEDDING_PROVIDER: %w", err))
		}
	}
	if used[llm.ProviderGemini] && c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required"))
	}
	if used[llm.ProviderOpenAI] && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY environment variable is required"))
	}

	switch c.Vector.Backend {
	case "qdrant":
		if c.Vector.VectorSize <= 0 {
			errs = append(errs, errors.New("QDRANT_VECTOR_SIZE must be positive"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("VECTOR_BACKEND must be qdrant or memory, got %q", c.Vector.Backend))
	}

	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT must not be empty"))
	}
	if c.Tuning.ChunkSeconds <= 0 {
		errs = append(errs, errors.New("CHUNK_SECONDS must be positive"))
	}
	if c.Tuning.OverlapSeconds < 0 || c.Tuning.OverlapSeconds >= c.Tuning.ChunkSeconds {
		errs = append(errs, errors.New("OVERLAP_SECONDS must be in [0, CHUNK_SECONDS)"))
	}
	return errors.Join(errs...)
}

// Pipeline returns the provider and tuning choices handed to the core services.
// Call it on a validated Config.
func (c *Config) Pipeline() core.PipelineConfig {
	return core.PipelineConfig{
		EmbeddingProvider:         llm.Provider(strings.ToLower(c.Providers.EmbeddingProvider)),
		EmbeddingModel:            c.Providers.EmbeddingModel,
		FallbackEmbeddingProvider: llm.Provider(strings.ToLower(c.Providers.FallbackEmbeddingProvider)),
		FallbackEmbeddingModel:    c.Providers.FallbackEmbeddingModel,
		GenerationProvider:        llm.Provider(strings.ToLower(c.Providers.GenerationProvider)),
		GenerationModel:           c.Providers.GenerationModel,
		ChunkSeconds:              c.Tuning.ChunkSeconds,
		OverlapSeconds:            c.Tuning.OverlapSeconds,
		EmbedBatchSize:            c.Tuning.EmbedBatchSize,
		IndexConcurrency:          c.Tuning.IndexConcurrency,
		TopK:                      c.Tuning.TopK,
		MaxContextTokens:          c.Tuning.MaxContextTokens,
		MaxQuestionLength:         c.Tuning.MaxQuestionLength,
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
