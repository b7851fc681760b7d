package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/cache"
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/vectorindex"
)

type fakeEmbedder struct {
	mu         sync.Mutex
	calls      int
	batchSizes []int
	models     []string
	err        error
	// vector, when set, is returned for every text.
	vector []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, model string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	f.models = append(f.models, model)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.vector != nil {
			out[i] = f.vector
			continue
		}
		out[i] = []float32{float32(len(text)%7) + 1, float32(strings.Count(text, "e")) + 1, 1}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []llm.Prompt
	models  []string
	reply   string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt llm.Prompt, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type recordingAnalytics struct {
	records []store.AnalyticsRecord
	err     error
}

func (r *recordingAnalytics) RecordAnalytics(_ context.Context, rec store.AnalyticsRecord) error {
	r.records = append(r.records, rec)
	return r.err
}

var errProviderDown = errors.New("provider unavailable: quota exceeded")

// harness wires the services over a real SQLite store and an in-memory vector index.
type harness struct {
	cfg        PipelineConfig
	store      *store.SQLiteStore
	index      *vectorindex.MemoryIndex
	summaries  *cache.SummaryCache
	registry   *llm.Registry
	gemini     *fakeEmbedder
	openai     *fakeEmbedder
	generator  *fakeGenerator
	openaiGen  *fakeGenerator
	analytics  *recordingAnalytics
	metrics    *metrics.Metrics
	retriever  *Retriever
	answers    *AnswerService
	indexing   *IndexingService
	summarizer *SummaryService
}

func newHarness(t *testing.T, mutate ...func(*PipelineConfig)) *harness {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := DefaultPipelineConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{
		cfg:       cfg,
		store:     s,
		index:     vectorindex.NewMemoryIndex(),
		summaries: cache.NewSummaryCache(nil, s, 0),
		registry:  llm.NewRegistry(),
		gemini:    &fakeEmbedder{},
		openai:    &fakeEmbedder{},
		generator: &fakeGenerator{reply: "The anglerfish appears at [00:04–00:49]."},
		openaiGen: &fakeGenerator{reply: "From OpenAI."},
		analytics: &recordingAnalytics{},
		metrics:   metrics.NewMetrics(prometheus.NewRegistry()),
	}
	h.registry.RegisterEmbedder(llm.ProviderGemini, h.gemini)
	h.registry.RegisterEmbedder(llm.ProviderOpenAI, h.openai)
	h.registry.RegisterGenerator(llm.ProviderGemini, h.generator)
	h.registry.RegisterGenerator(llm.ProviderOpenAI, h.openaiGen)

	h.retriever = NewRetriever(cfg, h.registry, h.index, s, h.summaries, h.metrics)
	h.answers = NewAnswerService(cfg, h.retriever, h.registry, h.analytics, h.metrics)
	h.indexing = NewIndexingService(cfg, h.registry, s, h.index, h.metrics)
	h.summarizer = NewSummaryService(cfg, h.registry, s, h.summaries, h.metrics)
	return h
}

// seedPoints puts points straight into the index, bypassing the indexing pipeline.
func (h *harness) seedPoints(t *testing.T, points ...vectorindex.Point) {
	t.Helper()
	_, err := h.index.Upsert(context.Background(), points)
	require.NoError(t, err)
}

func point(id string, vec []float32, videoID string, idx int, start, end float64, text string) vectorindex.Point {
	return vectorindex.Point{
		ID:     id,
		Vector: vec,
		Payload: vectorindex.Payload{
			VideoID:    videoID,
			VideoTitle: "Deep Sea Creatures",
			ChunkIndex: idx,
			Text:       text,
			StartTime:  start,
			EndTime:    end,
		},
	}
}
