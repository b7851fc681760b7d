package store

import (
	"fmt"
	"time"
)

// ChunkState is the lifecycle of a stored chunk: Created -> Embedded -> Indexed.
type ChunkState int

const (
	ChunkCreated ChunkState = iota
	ChunkEmbedded
	ChunkIndexed
)

func (s ChunkState) String() string {
	switch s {
	case ChunkEmbedded:
		return "embedded"
	case ChunkIndexed:
		return "indexed"
	default:
		return "created"
	}
}

// ParseChunkState is the inverse of ChunkState.String.
func ParseChunkState(s string) (ChunkState, error) {
	switch s {
	case "created":
		return ChunkCreated, nil
	case "embedded":
		return ChunkEmbedded, nil
	case "indexed":
		return ChunkIndexed, nil
	}
	return ChunkCreated, fmt.Errorf("unknown chunk state %q", s)
}

// MarshalText lets the state appear as a string in JSON responses.
func (s ChunkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Video struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Summary           *string   `json:"summary,omitempty"` // Nullable
	EmbeddingProvider string    `json:"embedding_provider,omitempty"`
	EmbeddingModel    string    `json:"embedding_model,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ChunkRecord is the persisted shape of a macro chunk.
type ChunkRecord struct {
	VideoID           string     `json:"video_id"`
	ChunkIndex        int        `json:"chunk_index"`
	Text              string     `json:"text"`
	StartTime         float64    `json:"start_time"`
	EndTime           float64    `json:"end_time"`
	Timestamp         string     `json:"timestamp"` // Formatted "[MM:SS–MM:SS]" label
	VectorID          *string    `json:"vector_id"` // Set once the chunk is in the vector index
	EmbeddingProvider string     `json:"embedding_provider,omitempty"`
	State             ChunkState `json:"state"`
}

type AnalyticsRecord struct {
	ID                  string    `json:"id"` // UUID
	VideoID             string    `json:"video_id"`
	Question            string    `json:"question"`
	Answer              string    `json:"answer"`
	Mode                string    `json:"mode"`
	ResponseTimeSeconds float64   `json:"response_time_seconds"`
	Provider            string    `json:"provider"`
	Model               string    `json:"model"`
	ChunksUsed          int       `json:"chunks_used"`
	UsedSummary         bool      `json:"used_summary"`
	CreatedAt           time.Time `json:"created_at"`
}

// IndexStatus summarizes chunk lifecycle counts for one video.
type IndexStatus struct {
	VideoID    string `json:"video_id"`
	Total      int    `json:"total"`
	Created    int    `json:"created"`
	Embedded   int    `json:"embedded"`
	Indexed    int    `json:"indexed"`
	Searchable bool   `json:"searchable"`
}
