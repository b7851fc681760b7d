package core

import (
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/transcript"
)

const (
	DefaultTopK              = 20
	MaxTopK                  = 100
	DefaultEmbedBatchSize    = 64
	MinEmbedBatchSize        = 50
	MaxEmbedBatchSize        = 100
	DefaultIndexConcurrency  = 4
	DefaultMaxContextTokens  = 12000
	DefaultMaxQuestionLength = 2000
	DefaultHistoryTurns      = 3

	// AssumedChunkSeconds labels a chunk whose stored end time is missing.
	AssumedChunkSeconds = 45.0
)

// PipelineConfig carries every provider and tuning choice the core needs. It is built
// once from configuration and passed in; nothing in core reads the environment.
type PipelineConfig struct {
	EmbeddingProvider         llm.Provider
	EmbeddingModel            string
	FallbackEmbeddingProvider llm.Provider
	FallbackEmbeddingModel    string
	GenerationProvider        llm.Provider
	GenerationModel           string

	ChunkSeconds     float64
	OverlapSeconds   float64
	EmbedBatchSize   int
	IndexConcurrency int
	TopK             int
	MaxContextTokens int

	MaxQuestionLength int
}

// DefaultPipelineConfig uses Gemini for embeddings and generation, with OpenAI as the
// index-time embedding fallback.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		EmbeddingProvider:         llm.ProviderGemini,
		EmbeddingModel:            llm.DefaultGeminiEmbeddingModel,
		FallbackEmbeddingProvider: llm.ProviderOpenAI,
		FallbackEmbeddingModel:    llm.DefaultOpenAIEmbeddingModel,
		GenerationProvider:        llm.ProviderGemini,
		GenerationModel:           llm.DefaultGeminiChatModel,
		ChunkSeconds:              transcript.DefaultChunkSeconds,
		OverlapSeconds:            transcript.DefaultOverlapSeconds,
		EmbedBatchSize:            DefaultEmbedBatchSize,
		IndexConcurrency:          DefaultIndexConcurrency,
		TopK:                      DefaultTopK,
		MaxContextTokens:          DefaultMaxContextTokens,
		MaxQuestionLength:         DefaultMaxQuestionLength,
	}
}

// withDefaults fills zero values and clamps out-of-range ones.
func (c PipelineConfig) withDefaults() PipelineConfig {
	def := DefaultPipelineConfig()
	if c.EmbeddingProvider == "" {
		c.EmbeddingProvider = def.EmbeddingProvider
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = def.EmbeddingModel
		}
	}
	if c.GenerationProvider == "" {
		c.GenerationProvider = def.GenerationProvider
		if c.GenerationModel == "" {
			c.GenerationModel = def.GenerationModel
		}
	}
	if c.ChunkSeconds <= 0 {
		c.ChunkSeconds = def.ChunkSeconds
	}
	if c.OverlapSeconds < 0 {
		c.OverlapSeconds = 0
	}
	c.EmbedBatchSize = clampBatchSize(c.EmbedBatchSize)
	if c.IndexConcurrency <= 0 {
		c.IndexConcurrency = def.IndexConcurrency
	}
	c.TopK = ClampTopK(c.TopK)
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = def.MaxContextTokens
	}
	if c.MaxQuestionLength <= 0 {
		c.MaxQuestionLength = def.MaxQuestionLength
	}
	return c
}

// ClampTopK maps a requested neighbour count into [1, MaxTopK]; zero means the default.
func ClampTopK(k int) int {
	switch {
	case k == 0:
		return DefaultTopK
	case k < 1:
		return 1
	case k > MaxTopK:
		return MaxTopK
	}
	return k
}

func clampBatchSize(n int) int {
	switch {
	case n == 0:
		return DefaultEmbedBatchSize
	case n < MinEmbedBatchSize:
		return MinEmbedBatchSize
	case n > MaxEmbedBatchSize:
		return MaxEmbedBatchSize
	}
	return n
}

// embeddingModelFor returns the configured model for an embedding provider, or "" to let
// the client pick its default.
func (c PipelineConfig) embeddingModelFor(p llm.Provider) string {
	switch p {
	case c.EmbeddingProvider:
		return c.EmbeddingModel
	case c.FallbackEmbeddingProvider:
		return c.FallbackEmbeddingModel
	}
	return ""
}
