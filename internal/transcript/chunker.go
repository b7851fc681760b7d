package transcript

import (
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultChunkSeconds   = 45.0
	DefaultOverlapSeconds = 12.0
)

// ChunkID returns the identifier of the chunk at chunkIndex within a video.
func ChunkID(videoID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", videoID, chunkIndex)
}

// BuildMacroChunks merges segments into overlapping, time-bounded chunks.
//
// Windows are measured in elapsed video time, not segment count: each window starts at a
// segment's start time and takes every following segment that starts within chunkSeconds.
// The next window starts at the first segment at or after chunkSeconds-overlapSeconds,
// and the cursor always moves forward by at least one segment.
func BuildMacroChunks(videoID string, segments []Segment, chunkSeconds, overlapSeconds float64) []MacroChunk {
	if len(segments) == 0 {
		return []MacroChunk{}
	}
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	if overlapSeconds < 0 {
		overlapSeconds = 0
	}
	step := chunkSeconds - overlapSeconds

	// Sources occasionally emit segments out of order; windows assume ascending starts.
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].StartTime < sorted[b].StartTime
	})

	chunks := make([]MacroChunk, 0, len(sorted)/4+1)
	i := 0
	for i < len(sorted) {
		windowStart := sorted[i].StartTime
		windowEnd := windowStart + chunkSeconds

		var parts []string
		endTime := windowStart
		first, last := sorted[i].Index, sorted[i].Index
		j := i
		for j < len(sorted) && (j == i || sorted[j].StartTime < windowEnd) {
			if text := Normalize(sorted[j].Text); text != "" {
				parts = append(parts, text)
			}
			if sorted[j].EndTime > endTime {
				endTime = sorted[j].EndTime
			}
			first = min(first, sorted[j].Index)
			last = max(last, sorted[j].Index)
			j++
		}

		if len(parts) > 0 {
			idx := len(chunks)
			chunks = append(chunks, MacroChunk{
				ChunkID:      ChunkID(videoID, idx),
				VideoID:      videoID,
				ChunkIndex:   idx,
				StartTime:    windowStart,
				EndTime:      endTime,
				Text:         strings.Join(parts, " "),
				SegmentRange: [2]int{first, last},
			})
		}

		next := i
		for next < len(sorted) && sorted[next].StartTime < windowStart+step {
			next++
		}
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}
