package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gwi.com/video-qa/internal/apperr"
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/transcript"
	"gwi.com/video-qa/internal/vectorindex"
)

// IndexRequest carries a video's raw segments. Zero chunk parameters use the configured values.
type IndexRequest struct {
	VideoID        string               `json:"video_id"`
	Title          string               `json:"title"`
	Segments       []transcript.Segment `json:"segments"`
	ChunkSeconds   float64              `json:"chunk_seconds,omitempty"`
	OverlapSeconds *float64             `json:"overlap_seconds,omitempty"`
}

type IndexResult struct {
	VideoID           string `json:"video_id"`
	Chunks            int    `json:"chunks"`
	Indexed           int    `json:"indexed"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	UsedFallback      bool   `json:"used_fallback"`
}

// IndexingService moves a transcript through chunking, embedding and vector indexing.
type IndexingService struct {
	cfg      PipelineConfig
	registry *llm.Registry
	chunks   ChunkStore
	index    VectorIndex
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewIndexingService(cfg PipelineConfig, registry *llm.Registry, chunks ChunkStore, index VectorIndex, m *metrics.Metrics) *IndexingService {
	return &IndexingService{
		cfg:      cfg.withDefaults(),
		registry: registry,
		chunks:   chunks,
		index:    index,
		metrics:  m,
		logger:   logging.WithComponent("indexing"),
	}
}

// IndexVideo replaces any previous index of the video. Failures part-way leave earlier
// steps in place; running it again with the same input converges to the same state.
func (s *IndexingService) IndexVideo(ctx context.Context, req IndexRequest) (res *IndexResult, err error) {
	start := time.Now()
	chunkCount := 0
	defer func() {
		s.metrics.RecordIndexing(err, chunkCount, time.Since(start).Seconds())
	}()

	if !ValidVideoID(req.VideoID) {
		return nil, apperr.Input("malformed video id %q", req.VideoID)
	}
	if err := transcript.ValidateSegments(req.Segments); err != nil {
		return nil, err
	}

	chunkSeconds := req.ChunkSeconds
	if chunkSeconds <= 0 {
		chunkSeconds = s.cfg.ChunkSeconds
	}
	overlapSeconds := s.cfg.OverlapSeconds
	if req.OverlapSeconds != nil {
		overlapSeconds = *req.OverlapSeconds
	}
	if overlapSeconds >= chunkSeconds {
		return nil, apperr.Input("overlap (%gs) must be shorter than the chunk window (%gs)", overlapSeconds, chunkSeconds)
	}

	macro := transcript.BuildMacroChunks(req.VideoID, req.Segments, chunkSeconds, overlapSeconds)
	if len(macro) == 0 {
		return nil, apperr.New(apperr.CodeChunkingDegenerate, "no transcript chunks available").
			WithMetadata("videoId", req.VideoID)
	}
	chunkCount = len(macro)

	logger := logging.WithVideo("indexing", req.VideoID)
	logger.Info().Int("segments", len(req.Segments)).Int("chunks", len(macro)).Msg("Indexing video")

	if err := s.chunks.UpsertVideo(ctx, req.VideoID, req.Title); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to store video")
	}
	if err := s.index.DeleteByVideo(ctx, req.VideoID); err != nil {
		s.metrics.RecordUpstreamError("vector_index", "")
		return nil, apperr.Upstream(err, "vector_index", "")
	}

	records := make([]store.ChunkRecord, len(macro))
	texts := make([]string, len(macro))
	for i, c := range macro {
		records[i] = store.ChunkRecord{
			VideoID:    req.VideoID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			StartTime:  c.StartTime,
			EndTime:    c.EndTime,
			Timestamp:  transcript.FormatRange(c.StartTime, c.EndTime),
			State:      store.ChunkCreated,
		}
		texts[i] = c.Text
	}
	if err := s.chunks.ReplaceChunks(ctx, req.VideoID, records); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to store chunks")
	}

	provider, model, vectors, usedFallback, err := s.embedWithFallback(ctx, texts, logger)
	if err != nil {
		return nil, err
	}

	indexes := make([]int, len(records))
	for i, r := range records {
		indexes[i] = r.ChunkIndex
	}
	if err := s.chunks.MarkChunksEmbedded(ctx, req.VideoID, indexes, provider.String()); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to mark chunks embedded")
	}

	points := make([]vectorindex.Point, len(macro))
	vectorIDs := make(map[int]string, len(macro))
	for i, c := range macro {
		id := vectorindex.VectorID(c.ChunkID)
		points[i] = vectorindex.Point{
			ID:     id,
			Vector: vectors[i],
			Payload: vectorindex.Payload{
				VideoID:    req.VideoID,
				VideoTitle: req.Title,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				StartTime:  c.StartTime,
				EndTime:    c.EndTime,
			},
		}
		vectorIDs[c.ChunkIndex] = id
	}

	indexed, err := s.upsertBatches(ctx, points)
	if err != nil {
		return nil, err
	}
	if err := s.chunks.MarkChunksIndexed(ctx, req.VideoID, vectorIDs, provider.String()); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to mark chunks indexed")
	}
	if err := s.chunks.SetVideoEmbedding(ctx, req.VideoID, provider.String(), model); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to record video embedding provider")
	}

	logger.Info().
		Str("provider", provider.String()).
		Int("indexed", indexed).
		Bool("usedFallback", usedFallback).
		Dur("took", time.Since(start)).
		Msg("Video indexed")

	return &IndexResult{
		VideoID:           req.VideoID,
		Chunks:            len(macro),
		Indexed:           indexed,
		EmbeddingProvider: provider.String(),
		EmbeddingModel:    model,
		UsedFallback:      usedFallback,
	}, nil
}

// embedWithFallback embeds every text with the preferred provider. If any batch fails the
// whole set is embedded again with the fallback provider so one video never mixes spaces.
func (s *IndexingService) embedWithFallback(ctx context.Context, texts []string, logger zerolog.Logger) (llm.Provider, string, [][]float32, bool, error) {
	preferred := s.cfg.EmbeddingProvider
	model := s.cfg.embeddingModelFor(preferred)
	vectors, err := s.embedAll(ctx, preferred, model, texts)
	if err == nil {
		return preferred, model, vectors, false, nil
	}
	s.metrics.RecordUpstreamError("embedding", preferred.String())

	fallback := s.cfg.FallbackEmbeddingProvider
	if fallback == "" || fallback == preferred {
		return "", "", nil, false, apperr.Upstream(err, "embedding", preferred.String())
	}
	if _, regErr := s.registry.Embedder(fallback); regErr != nil {
		return "", "", nil, false, apperr.Upstream(err, "embedding", preferred.String())
	}

	logger.Warn().Err(err).
		Str("from", preferred.String()).
		Str("to", fallback.String()).
		Msg("Embedding failed, retrying video with fallback provider")
	s.metrics.RecordEmbeddingFallback(preferred.String(), fallback.String())

	fallbackModel := s.cfg.embeddingModelFor(fallback)
	vectors, err = s.embedAll(ctx, fallback, fallbackModel, texts)
	if err != nil {
		s.metrics.RecordUpstreamError("embedding", fallback.String())
		return "", "", nil, false, apperr.Upstream(err, "embedding", fallback.String())
	}
	return fallback, fallbackModel, vectors, true, nil
}

// embedAll embeds texts in fixed-size batches, up to IndexConcurrency at a time. Output
// order matches input order.
func (s *IndexingService) embedAll(ctx context.Context, provider llm.Provider, model string, texts []string) ([][]float32, error) {
	embedder, err := s.registry.Embedder(provider)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.IndexConcurrency)

	for start := 0; start < len(texts); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(texts))
		g.Go(func() error {
			vectors, err := embedder.Embed(gctx, texts[start:end], model)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("batch %d-%d: got %d vectors", start, end, len(vectors))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *IndexingService) upsertBatches(ctx context.Context, points []vectorindex.Point) (int, error) {
	size := s.cfg.EmbedBatchSize
	// One slot per batch, allocated up front; each goroutine writes only its own.
	counts := make([]int, (len(points)+size-1)/size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.IndexConcurrency)

	for slot := range counts {
		start := slot * size
		end := min(start+size, len(points))
		g.Go(func() error {
			n, err := s.index.Upsert(gctx, points[start:end])
			if err != nil {
				return err
			}
			counts[slot] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.RecordUpstreamError("vector_index", "")
		return 0, apperr.Upstream(err, "vector_index", "")
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// ImproveChunkText replaces one chunk's text, keeping its time bounds and index, and
// re-embeds it under the same vector id.
func (s *IndexingService) ImproveChunkText(ctx context.Context, videoID string, chunkIndex int, text string) (*store.ChunkRecord, error) {
	if !ValidVideoID(videoID) {
		return nil, apperr.Input("malformed video id %q", videoID)
	}
	if chunkIndex < 0 {
		return nil, apperr.Input("chunk index must not be negative")
	}
	text = transcript.Normalize(text)
	if text == "" {
		return nil, apperr.Input("chunk text must not be empty")
	}

	chunk, err := s.chunks.GetChunk(ctx, videoID, chunkIndex)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load chunk")
	}
	if chunk == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "chunk %d of video %s not found", chunkIndex, videoID)
	}
	video, err := s.chunks.GetVideo(ctx, videoID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load video")
	}

	provider, model := s.cfg.EmbeddingProvider, s.cfg.EmbeddingModel
	title := ""
	if video != nil {
		title = video.Title
		if video.EmbeddingProvider != "" {
			p, err := llm.ParseProvider(video.EmbeddingProvider)
			if err != nil {
				return nil, apperr.Wrap(err, apperr.CodeInternal, "video has an unknown embedding provider")
			}
			provider, model = p, video.EmbeddingModel
		}
	}

	// The stored row changes only after the new vector is in the index.
	vectors, err := s.embedAll(ctx, provider, model, []string{text})
	if err != nil {
		s.metrics.RecordUpstreamError("embedding", provider.String())
		return nil, apperr.Upstream(err, "embedding", provider.String())
	}

	id := vectorindex.VectorID(transcript.ChunkID(videoID, chunkIndex))
	_, err = s.index.Upsert(ctx, []vectorindex.Point{{
		ID:     id,
		Vector: vectors[0],
		Payload: vectorindex.Payload{
			VideoID:    videoID,
			VideoTitle: title,
			ChunkIndex: chunkIndex,
			Text:       text,
			StartTime:  chunk.StartTime,
			EndTime:    chunk.EndTime,
		},
	}})
	if err != nil {
		s.metrics.RecordUpstreamError("vector_index", "")
		return nil, apperr.Upstream(err, "vector_index", "")
	}
	if err := s.chunks.UpdateChunkText(ctx, videoID, chunkIndex, text, id, provider.String()); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to update chunk text")
	}

	s.logger.Info().Str("videoId", videoID).Int("chunkIndex", chunkIndex).Msg("Chunk text improved")
	return s.chunks.GetChunk(ctx, videoID, chunkIndex)
}

// DeleteVideoIndex removes a video's vectors and chunk rows. The video row and its
// summary are kept.
func (s *IndexingService) DeleteVideoIndex(ctx context.Context, videoID string) error {
	if !ValidVideoID(videoID) {
		return apperr.Input("malformed video id %q", videoID)
	}
	if err := s.index.DeleteByVideo(ctx, videoID); err != nil {
		s.metrics.RecordUpstreamError("vector_index", "")
		return apperr.Upstream(err, "vector_index", "")
	}
	if err := s.chunks.DeleteChunks(ctx, videoID); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to delete chunks")
	}
	s.logger.Info().Str("videoId", videoID).Msg("Video index deleted")
	return nil
}

func (s *IndexingService) Status(ctx context.Context, videoID string) (*store.IndexStatus, error) {
	if !ValidVideoID(videoID) {
		return nil, apperr.Input("malformed video id %q", videoID)
	}
	status, err := s.chunks.IndexStatus(ctx, videoID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to read index status")
	}
	if status.Total == 0 {
		video, err := s.chunks.GetVideo(ctx, videoID)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load video")
		}
		if video == nil {
			return nil, apperr.Newf(apperr.CodeNotFound, "video %s not found", videoID)
		}
	}
	return status, nil
}

