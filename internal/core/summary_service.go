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
)

const summaryInstruction = `Write a summary of the video from its transcript excerpts below.
Open with two or three sentences on what the video is about.
Then list 3 to 5 key moments, each starting with its timestamp range exactly as written, e.g. [00:04–00:49].
Use plain prose and no headings. Do not invent anything that is not in the excerpts.`

// SummaryService maintains the precomputed video summaries behind the summary fast path.
type SummaryService struct {
	cfg       PipelineConfig
	registry  *llm.Registry
	chunks    ChunkStore
	summaries SummaryCache
	counter   *tokens.Counter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func NewSummaryService(cfg PipelineConfig, registry *llm.Registry, chunks ChunkStore, summaries SummaryCache, m *metrics.Metrics) *SummaryService {
	return &SummaryService{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		chunks:    chunks,
		summaries: summaries,
		counter:   tokens.Default(),
		metrics:   m,
		logger:    logging.WithComponent("summary"),
	}
}

// SetSummary stores a summary supplied by the caller.
func (s *SummaryService) SetSummary(ctx context.Context, videoID, summary string) error {
	if !ValidVideoID(videoID) {
		return apperr.Input("malformed video id %q", videoID)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return apperr.Input("summary must not be empty")
	}
	if err := s.requireVideo(ctx, videoID); err != nil {
		return err
	}
	if err := s.summaries.SetSummary(ctx, videoID, summary); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to store summary")
	}
	return nil
}

// GenerateSummary asks the generation provider to summarize the stored chunks, in
// order, up to the context token budget, and stores the result.
func (s *SummaryService) GenerateSummary(ctx context.Context, videoID string) (string, error) {
	if !ValidVideoID(videoID) {
		return "", apperr.Input("malformed video id %q", videoID)
	}
	if err := s.requireVideo(ctx, videoID); err != nil {
		return "", err
	}

	records, err := s.chunks.ListChunks(ctx, videoID)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to list chunks")
	}
	if len(records) == 0 {
		return "", apperr.New(apperr.CodeChunkingDegenerate, "no transcript chunks available").
			WithMetadata("videoId", videoID)
	}

	var excerpts strings.Builder
	used := 0
	for _, r := range records {
		line := fmt.Sprintf("%s %s\n", r.Timestamp, r.Text)
		cost := s.counter.Count(line)
		if used+cost > s.cfg.MaxContextTokens && used > 0 {
			s.logger.Debug().Str("videoId", videoID).Int("chunkIndex", r.ChunkIndex).Msg("Summary excerpt budget reached")
			break
		}
		used += cost
		excerpts.WriteString(line)
	}

	provider, model := s.cfg.GenerationProvider, s.cfg.GenerationModel
	gen, err := s.registry.Generator(provider)
	if err != nil {
		return "", apperr.Upstream(err, "generation", provider.String())
	}
	summary, err := gen.Generate(ctx, llm.Prompt{
		System: summaryInstruction,
		User:   excerpts.String(),
	}, model)
	if err != nil {
		s.metrics.RecordUpstreamError("generation", provider.String())
		return "", apperr.Upstream(err, "generation", provider.String())
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", apperr.Upstream(fmt.Errorf("empty summary"), "generation", provider.String())
	}

	if err := s.summaries.SetSummary(ctx, videoID, summary); err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to store summary")
	}
	s.logger.Info().Str("videoId", videoID).Int("tokens", used).Msg("Summary generated")
	return summary, nil
}

func (s *SummaryService) requireVideo(ctx context.Context, videoID string) error {
	video, err := s.chunks.GetVideo(ctx, videoID)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to load video")
	}
	if video == nil {
		return apperr.Newf(apperr.CodeNotFound, "video %s not found", videoID)
	}
	return nil
}
