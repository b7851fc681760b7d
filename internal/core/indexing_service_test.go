package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/apperr"
	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/transcript"
	"gwi.com/video-qa/internal/vectorindex"
)

// evenSegments returns n segments of step seconds each.
func evenSegments(n int, step float64) []transcript.Segment {
	segs := make([]transcript.Segment, n)
	for i := range segs {
		segs[i] = transcript.Segment{
			Index:     i,
			Text:      fmt.Sprintf("segment %d about the deep sea", i),
			StartTime: float64(i) * step,
			EndTime:   float64(i+1) * step,
		}
	}
	return segs
}

func TestIndexVideo(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Title: "Deep Sea Creatures", Segments: evenSegments(40, 5)})
	require.NoError(t, err)

	assert.Equal(t, "vid", res.VideoID)
	assert.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, res.Indexed)
	assert.Equal(t, "gemini", res.EmbeddingProvider)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, res.Chunks, h.index.Len())

	chunks, err := h.store.ListChunks(ctx, "vid")
	require.NoError(t, err)
	require.Len(t, chunks, res.Chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, store.ChunkIndexed, c.State)
		require.NotNil(t, c.VectorID)
		assert.Equal(t, vectorindex.VectorID(transcript.ChunkID("vid", i)), *c.VectorID)
		assert.Equal(t, "gemini", c.EmbeddingProvider)
		assert.Equal(t, transcript.FormatRange(c.StartTime, c.EndTime), c.Timestamp)
	}

	video, err := h.store.GetVideo(ctx, "vid")
	require.NoError(t, err)
	assert.Equal(t, "gemini", video.EmbeddingProvider)
	assert.Equal(t, h.cfg.EmbeddingModel, video.EmbeddingModel)

	status, err := h.indexing.Status(ctx, "vid")
	require.NoError(t, err)
	assert.True(t, status.Searchable)
	assert.Equal(t, res.Chunks, status.Indexed)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.VideosIndexed.WithLabelValues("success")))
	assert.Equal(t, float64(res.Chunks), testutil.ToFloat64(h.metrics.ChunksIndexed))
}

func TestIndexVideo_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req := IndexRequest{VideoID: "vid", Title: "Deep Sea Creatures", Segments: evenSegments(40, 5)}

	first, err := h.indexing.IndexVideo(ctx, req)
	require.NoError(t, err)
	second, err := h.indexing.IndexVideo(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, first.Chunks, h.index.Len())
}

func TestIndexVideo_ReindexWithFewerChunksDropsStaleVectors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Segments: evenSegments(40, 5)})
	require.NoError(t, err)
	res, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Segments: evenSegments(5, 5)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, h.index.Len())
}

func TestIndexVideo_BatchesEmbeddings(t *testing.T) {
	h := newHarness(t, func(c *PipelineConfig) { c.EmbedBatchSize = 50 })

	res, err := h.indexing.IndexVideo(context.Background(), IndexRequest{VideoID: "vid", Segments: evenSegments(400, 5)})
	require.NoError(t, err)
	require.Greater(t, res.Chunks, 50)

	total := 0
	for _, n := range h.gemini.batchSizes {
		assert.LessOrEqual(t, n, 50)
		total += n
	}
	assert.Equal(t, res.Chunks, total)
	assert.Len(t, h.gemini.batchSizes, (res.Chunks+49)/50)
}

func TestIndexVideo_FallsBackToAlternateProvider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gemini.err = errProviderDown

	res, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Title: "Deep Sea Creatures", Segments: evenSegments(40, 5)})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	assert.Equal(t, "openai", res.EmbeddingProvider)
	assert.Equal(t, h.cfg.FallbackEmbeddingModel, res.EmbeddingModel)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EmbeddingFallbacks.WithLabelValues("gemini", "openai")))

	video, err := h.store.GetVideo(ctx, "vid")
	require.NoError(t, err)
	assert.Equal(t, "openai", video.EmbeddingProvider)

	chunks, err := h.store.ListChunks(ctx, "vid")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, "openai", c.EmbeddingProvider)
	}
}

func TestIndexVideo_BothProvidersFail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gemini.err = errProviderDown
	h.openai.err = errProviderDown

	_, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Segments: evenSegments(40, 5)})

	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUpstream))
	assert.Equal(t, 0, h.index.Len())

	status, err := h.store.IndexStatus(ctx, "vid")
	require.NoError(t, err)
	assert.Equal(t, status.Total, status.Created, "chunks stay in the created state")
	assert.False(t, status.Searchable)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.VideosIndexed.WithLabelValues("failed")))
}

func TestIndexVideo_Errors(t *testing.T) {
	overlap := 50.0
	tests := []struct {
		name string
		req  IndexRequest
		code apperr.Code
	}{
		{"malformed id", IndexRequest{VideoID: "a b", Segments: evenSegments(3, 5)}, apperr.CodeInput},
		{"end before start", IndexRequest{VideoID: "vid", Segments: []transcript.Segment{{Text: "x", StartTime: 5, EndTime: 1}}}, apperr.CodeInput},
		{"overlap not shorter than window", IndexRequest{VideoID: "vid", Segments: evenSegments(3, 5), OverlapSeconds: &overlap}, apperr.CodeInput},
		{"no segments", IndexRequest{VideoID: "vid"}, apperr.CodeChunkingDegenerate},
		{"only fillers", IndexRequest{VideoID: "vid", Segments: []transcript.Segment{
			{Index: 0, Text: "uh", StartTime: 0, EndTime: 2},
			{Index: 1, Text: "um, you know", StartTime: 2, EndTime: 4},
		}}, apperr.CodeChunkingDegenerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.indexing.IndexVideo(context.Background(), tt.req)

			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
			assert.Equal(t, 0, h.gemini.callCount(), "nothing is embedded")
		})
	}
}

func TestImproveChunkText(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Title: "Deep Sea Creatures", Segments: evenSegments(40, 5)})
	require.NoError(t, err)

	before, err := h.store.GetChunk(ctx, "vid", 1)
	require.NoError(t, err)
	pointsBefore := h.index.Len()

	updated, err := h.indexing.ImproveChunkText(ctx, "vid", 1, "The anglerfish   glows in the dark.")
	require.NoError(t, err)

	assert.Equal(t, "The anglerfish glows in the dark.", updated.Text)
	assert.Equal(t, before.StartTime, updated.StartTime)
	assert.Equal(t, before.EndTime, updated.EndTime)
	assert.Equal(t, store.ChunkIndexed, updated.State)
	require.NotNil(t, updated.VectorID)
	assert.Equal(t, *before.VectorID, *updated.VectorID)
	assert.Equal(t, pointsBefore, h.index.Len(), "upserted under the same vector id")

	vec, err := h.gemini.Embed(ctx, []string{updated.Text}, "")
	require.NoError(t, err)
	matches, err := h.index.Query(ctx, vec[0], 100, vectorindex.Filter{VideoID: "vid"})
	require.NoError(t, err)
	var found bool
	for _, m := range matches {
		if m.ID == *updated.VectorID {
			found = true
			assert.Equal(t, "The anglerfish glows in the dark.", m.Payload.Text)
			assert.Equal(t, "Deep Sea Creatures", m.Payload.VideoTitle)
		}
	}
	assert.True(t, found)
}

func TestImproveChunkText_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.indexing.ImproveChunkText(ctx, "vid", 0, "text")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	_, err = h.indexing.ImproveChunkText(ctx, "vid", 0, "  uh  ")
	assert.True(t, apperr.IsCode(err, apperr.CodeInput))

	_, err = h.indexing.ImproveChunkText(ctx, "vid", -1, "text")
	assert.True(t, apperr.IsCode(err, apperr.CodeInput))
}

func TestImproveChunkText_EmbeddingFailureLeavesChunkUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Segments: evenSegments(40, 5)})
	require.NoError(t, err)
	before, err := h.store.GetChunk(ctx, "vid", 2)
	require.NoError(t, err)

	h.gemini.err = errProviderDown
	_, err = h.indexing.ImproveChunkText(ctx, "vid", 2, "A corrected line.")
	require.True(t, apperr.IsCode(err, apperr.CodeUpstream))

	after, err := h.store.GetChunk(ctx, "vid", 2)
	require.NoError(t, err)
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, store.ChunkIndexed, after.State)
	require.NotNil(t, after.VectorID)
	assert.Equal(t, *before.VectorID, *after.VectorID)

	status, err := h.indexing.Status(ctx, "vid")
	require.NoError(t, err)
	assert.Equal(t, status.Total, status.Indexed)
}

func TestUpsertBatches_CountsEveryPoint(t *testing.T) {
	for _, n := range []int{400, 401, 49, 1} {
		t.Run(fmt.Sprintf("%d points", n), func(t *testing.T) {
			h := newHarness(t, func(c *PipelineConfig) {
				c.EmbedBatchSize = 50
				c.IndexConcurrency = 4
			})
			points := make([]vectorindex.Point, n)
			for i := range points {
				points[i] = point(fmt.Sprintf("p%d", i), []float32{1, float32(i), 1}, "vid", i, float64(i), float64(i+1), "text")
			}

			total, err := h.indexing.upsertBatches(context.Background(), points)

			require.NoError(t, err)
			assert.Equal(t, n, total)
			assert.Equal(t, n, h.index.Len())
		})
	}
}

func TestDeleteVideoIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "vid", Segments: evenSegments(40, 5)})
	require.NoError(t, err)
	_, err = h.indexing.IndexVideo(ctx, IndexRequest{VideoID: "keep", Segments: evenSegments(10, 5)})
	require.NoError(t, err)
	total := h.index.Len()

	require.NoError(t, h.indexing.DeleteVideoIndex(ctx, "vid"))

	chunks, err := h.store.ListChunks(ctx, "vid")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	status, err := h.indexing.Status(ctx, "vid")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Total)
	assert.False(t, status.Searchable)

	kept, err := h.store.ListChunks(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, len(kept), h.index.Len())
	assert.Less(t, h.index.Len(), total)
}

func TestStatus_UnknownVideo(t *testing.T) {
	h := newHarness(t)

	_, err := h.indexing.Status(context.Background(), "missing")

	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
