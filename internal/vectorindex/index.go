// Package vectorindex stores chunk vectors and answers filtered nearest-neighbor queries.
package vectorindex

import (
	"github.com/google/uuid"
)

// vectorNamespace seeds deterministic point ids so re-upserting a chunk overwrites it.
var vectorNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8f-9a51-2a4f0c8e7d13")

// Payload is the metadata stored next to each chunk vector.
type Payload struct {
	VideoID    string  `json:"video_id"`
	VideoTitle string  `json:"video_title"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Match struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter narrows a query. An empty VideoID searches every video.
type Filter struct {
	VideoID string
}

// VectorID returns the deterministic point id of a chunk.
func VectorID(chunkID string) string {
	return uuid.NewSHA1(vectorNamespace, []byte(chunkID)).String()
}
