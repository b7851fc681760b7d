package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/store"
)

func TestPipelineConfig_WithDefaults(t *testing.T) {
	cfg := PipelineConfig{
		EmbedBatchSize:   500,
		TopK:             1000,
		OverlapSeconds:   -3,
		IndexConcurrency: -1,
	}.withDefaults()

	assert.Equal(t, llm.ProviderGemini, cfg.EmbeddingProvider)
	assert.Equal(t, llm.DefaultGeminiEmbeddingModel, cfg.EmbeddingModel)
	assert.Equal(t, llm.ProviderGemini, cfg.GenerationProvider)
	assert.Equal(t, MaxEmbedBatchSize, cfg.EmbedBatchSize)
	assert.Equal(t, MaxTopK, cfg.TopK)
	assert.Equal(t, 0.0, cfg.OverlapSeconds)
	assert.Equal(t, DefaultIndexConcurrency, cfg.IndexConcurrency)
	assert.Equal(t, 45.0, cfg.ChunkSeconds)
	assert.Equal(t, DefaultMaxQuestionLength, cfg.MaxQuestionLength)

	assert.Equal(t, MinEmbedBatchSize, PipelineConfig{EmbedBatchSize: 10}.withDefaults().EmbedBatchSize)
	assert.Equal(t, DefaultEmbedBatchSize, PipelineConfig{}.withDefaults().EmbedBatchSize)
}

func TestPipelineConfig_ExplicitProviderKeepsModel(t *testing.T) {
	cfg := PipelineConfig{EmbeddingProvider: llm.ProviderOpenAI}.withDefaults()

	assert.Equal(t, llm.ProviderOpenAI, cfg.EmbeddingProvider)
	assert.Empty(t, cfg.EmbeddingModel, "client default applies")
	assert.Equal(t, "", cfg.embeddingModelFor(llm.ProviderGemini))
}

func TestAnalyticsFanout(t *testing.T) {
	failing := &recordingAnalytics{err: errProviderDown}
	ok := &recordingAnalytics{}
	f := NewAnalyticsFanout(
		NamedRecorder{Name: "kafka", Recorder: failing},
		NamedRecorder{Name: "nil", Recorder: nil},
		NamedRecorder{Name: "sqlite", Recorder: ok},
	)

	err := f.RecordAnalytics(context.Background(), store.AnalyticsRecord{ID: "a1", VideoID: "vid"})

	require.NoError(t, err)
	assert.Len(t, failing.records, 1)
	require.Len(t, ok.records, 1, "a failing sink does not stop the next one")
	assert.Equal(t, "a1", ok.records[0].ID)
}
