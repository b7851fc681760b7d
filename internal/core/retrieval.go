package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/apperr"
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/tokens"
	"gwi.com/video-qa/internal/transcript"
	"gwi.com/video-qa/internal/vectorindex"
)

// NoRelevantInfoAnswer is returned verbatim when the index has no match for a question.
const NoRelevantInfoAnswer = "I couldn't find any relevant information in the transcript to answer that question."

const contextDelimiter = "\n---\n"

type RetrievalRequest struct {
	Question string
	VideoID  string
	TopK     int
	Language string
	Mode     Mode
}

// RetrievalResult is either a fast-path summary, an empty retrieval or an assembled
// context with the chunks it cites, in the same order.
type RetrievalResult struct {
	Chunks      []RetrievedChunk
	Context     string
	Summary     string
	UsedSummary bool
	Empty       bool
	// Provider and Model are the embedding provider used for the query, if any.
	Provider llm.Provider
	Model    string
}

// Retriever turns a question into grounded context.
type Retriever struct {
	cfg       PipelineConfig
	registry  *llm.Registry
	index     VectorIndex
	chunks    ChunkStore
	summaries SummaryCache
	counter   *tokens.Counter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewRetriever(cfg PipelineConfig, registry *llm.Registry, index VectorIndex, chunks ChunkStore, summaries SummaryCache, m *metrics.Metrics) *Retriever {
	return &Retriever{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		index:     index,
		chunks:    chunks,
		summaries: summaries,
		counter:   tokens.Default(),
		metrics:   m,
		logger:    logging.WithComponent("retrieval"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	if req.Mode == ModeSummary && req.VideoID != "" && r.summaries != nil {
		summary, ok, err := r.summaries.GetSummary(ctx, req.VideoID)
		if err != nil {
			r.logger.Warn().Err(err).Str("videoId", req.VideoID).Msg("Summary lookup failed, retrieving instead")
		} else if ok && strings.TrimSpace(summary) != "" {
			r.logger.Debug().Str("videoId", req.VideoID).Msg("Answering from cached summary")
			return &RetrievalResult{Summary: summary, UsedSummary: true, Chunks: []RetrievedChunk{}}, nil
		}
	}

	provider, model, err := r.queryProvider(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	embedder, err := r.registry.Embedder(provider)
	if err != nil {
		return nil, apperr.Upstream(err, "embedding", provider.String())
	}

	vectors, err := embedder.Embed(ctx, []string{req.Question}, model)
	if err != nil {
		r.metrics.RecordUpstreamError("embedding", provider.String())
		return nil, apperr.Upstream(err, "embedding", provider.String())
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		r.metrics.RecordUpstreamError("embedding", provider.String())
		return nil, apperr.Upstream(fmt.Errorf("expected 1 query embedding, got %d", len(vectors)), "embedding", provider.String())
	}

	matches, err := r.index.Query(ctx, vectors[0], ClampTopK(req.TopK), vectorindex.Filter{VideoID: req.VideoID})
	if err != nil {
		r.metrics.RecordUpstreamError("vector_index", "")
		return nil, apperr.Upstream(err, "vector_index", "")
	}

	result := &RetrievalResult{Provider: provider, Model: model}
	if len(matches) == 0 {
		r.metrics.RecordEmptyRetrieval()
		r.logger.Info().Str("videoId", req.VideoID).Msg("No matches for question")
		result.Empty = true
		result.Chunks = []RetrievedChunk{}
		return result, nil
	}

	result.Chunks, result.Context = r.assemble(matches)
	r.logger.Debug().
		Str("videoId", req.VideoID).
		Int("matches", len(matches)).
		Int("sources", len(result.Chunks)).
		Msg("Assembled context")
	return result, nil
}

// queryProvider picks the provider that embedded the video so query and index vectors
// share a space. Unscoped questions and unrecorded videos use the configured default.
func (r *Retriever) queryProvider(ctx context.Context, videoID string) (llm.Provider, string, error) {
	if videoID == "" || r.chunks == nil {
		return r.cfg.EmbeddingProvider, r.cfg.EmbeddingModel, nil
	}
	video, err := r.chunks.GetVideo(ctx, videoID)
	if err != nil {
		return "", "", apperr.Wrap(err, apperr.CodeInternal, "failed to load video")
	}
	if video == nil || video.EmbeddingProvider == "" {
		return r.cfg.EmbeddingProvider, r.cfg.EmbeddingModel, nil
	}
	p, err := llm.ParseProvider(video.EmbeddingProvider)
	if err != nil {
		return "", "", apperr.Wrap(err, apperr.CodeInternal, "video has an unknown embedding provider")
	}
	return p, video.EmbeddingModel, nil
}

// assemble numbers sources in index order and stops before the token budget is
// exceeded, so every returned chunk appears in the context under the same number.
func (r *Retriever) assemble(matches []vectorindex.Match) ([]RetrievedChunk, string) {
	chunks := make([]RetrievedChunk, 0, len(matches))
	sections := make([]string, 0, len(matches))
	used := 0

	for _, m := range matches {
		chunk := retrievedFromMatch(m)
		section := formatSource(len(sections)+1, chunk)

		cost := r.counter.Count(section)
		if len(sections) > 0 {
			cost += r.counter.Count(contextDelimiter)
		}
		if used+cost > r.cfg.MaxContextTokens && len(sections) > 0 {
			r.logger.Debug().Int("kept", len(sections)).Int("dropped", len(matches)-len(sections)).Msg("Context token budget reached")
			break
		}
		used += cost
		chunks = append(chunks, chunk)
		sections = append(sections, section)
	}
	return chunks, strings.Join(sections, contextDelimiter)
}

func retrievedFromMatch(m vectorindex.Match) RetrievedChunk {
	end := m.Payload.EndTime
	if end <= 0 || end < m.Payload.StartTime {
		end = m.Payload.StartTime + AssumedChunkSeconds
	}
	return RetrievedChunk{
		Text:           m.Payload.Text,
		Score:          m.Score,
		TimestampLabel: transcript.FormatRange(m.Payload.StartTime, end),
		VideoTitle:     m.Payload.VideoTitle,
		VideoID:        m.Payload.VideoID,
		ChunkIndex:     m.Payload.ChunkIndex,
		StartTime:      m.Payload.StartTime,
		EndTime:        end,
	}
}

// formatSource renders one context section. Scores never appear in it.
func formatSource(n int, c RetrievedChunk) string {
	return fmt.Sprintf("SOURCE %d | %s | video=%q\n%s", n, c.TimestampLabel, c.VideoTitle, c.Text)
}
