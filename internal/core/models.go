package core

import (
	"context"

	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/vectorindex"
)

// ConversationTurn is one prior message in the conversation.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// RetrievedChunk is a vector match as shown to the caller and cited in the context.
type RetrievedChunk struct {
	Text           string  `json:"text"`
	Score          float32 `json:"score"`
	TimestampLabel string  `json:"timestamp_label"`
	VideoTitle     string  `json:"video_title"`
	VideoID        string  `json:"video_id"`
	ChunkIndex     int     `json:"chunk_index"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
}

type Answer struct {
	Text                string           `json:"text"`
	RetrievedChunks     []RetrievedChunk `json:"retrieved_chunks"`
	Mode                Mode             `json:"mode"`
	ResponseTimeSeconds float64          `json:"response_time_seconds"`
	UsedSummary         bool             `json:"used_summary"`
	Provider            string           `json:"provider,omitempty"`
	Model               string           `json:"model,omitempty"`
}

// ChunkStore is the persistence the core needs for videos and their chunks.
type ChunkStore interface {
	UpsertVideo(ctx context.Context, id, title string) error
	GetVideo(ctx context.Context, id string) (*store.Video, error)
	SetVideoEmbedding(ctx context.Context, videoID, provider, model string) error
	ReplaceChunks(ctx context.Context, videoID string, chunks []store.ChunkRecord) error
	ListChunks(ctx context.Context, videoID string) ([]store.ChunkRecord, error)
	GetChunk(ctx context.Context, videoID string, chunkIndex int) (*store.ChunkRecord, error)
	MarkChunksEmbedded(ctx context.Context, videoID string, chunkIndexes []int, provider string) error
	MarkChunksIndexed(ctx context.Context, videoID string, vectorIDs map[int]string, provider string) error
	UpdateChunkText(ctx context.Context, videoID string, chunkIndex int, text, vectorID, provider string) error
	DeleteChunks(ctx context.Context, videoID string) error
	IndexStatus(ctx context.Context, videoID string) (*store.IndexStatus, error)
}

// VectorIndex is the nearest-neighbour index holding chunk embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, points []vectorindex.Point) (int, error)
	Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error)
	Delete(ctx context.Context, ids []string) error
	DeleteByVideo(ctx context.Context, videoID string) error
}

// SummaryCache holds precomputed video-level summaries.
type SummaryCache interface {
	GetSummary(ctx context.Context, videoID string) (string, bool, error)
	SetSummary(ctx context.Context, videoID, summary string) error
}

// AnalyticsRecorder receives one record per answered question.
type AnalyticsRecorder interface {
	RecordAnalytics(ctx context.Context, rec store.AnalyticsRecord) error
}
