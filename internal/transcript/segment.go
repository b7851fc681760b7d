// Package transcript turns timestamped caption segments into macro chunks ready for embedding.
package transcript

import (
	"math"

	"gwi.com/video-qa/internal/apperr"
)

// Segment is a single caption or ASR unit. Times are in seconds.
type Segment struct {
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// MacroChunk is a time-windowed group of segments sized for embedding and citation.
type MacroChunk struct {
	ChunkID    string  `json:"chunk_id"`
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	// SegmentRange is the inclusive [min, max] of the source segment indexes in the window.
	SegmentRange [2]int `json:"segment_range"`
}

// ValidateSegments rejects segment arrays that cannot be chunked meaningfully.
func ValidateSegments(segments []Segment) error {
	for i, seg := range segments {
		if math.IsNaN(seg.StartTime) || math.IsNaN(seg.EndTime) ||
			math.IsInf(seg.StartTime, 0) || math.IsInf(seg.EndTime, 0) {
			return apperr.Input("segment %d has a non-finite time", i)
		}
		if seg.StartTime < 0 || seg.EndTime < 0 {
			return apperr.Input("segment %d has a negative time", i)
		}
		if seg.EndTime < seg.StartTime {
			return apperr.Input("segment %d ends (%.3f) before it starts (%.3f)", i, seg.EndTime, seg.StartTime)
		}
	}
	return nil
}
