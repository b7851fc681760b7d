package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process index that scores every stored vector on each query.
// It suits local development and tests; production deployments use QdrantIndex.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]Point)}
}

func (m *MemoryIndex) Upsert(_ context.Context, points []Point) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		m.points[p.ID] = p
	}
	return len(points), nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.points))
	for _, p := range m.points {
		if filter.VideoID != "" && p.Payload.VideoID != filter.VideoID {
			continue
		}
		score, err := CosineSimilarity(vector, p.Vector)
		if err != nil {
			// Vectors from another embedding model have a different dimension.
			continue
		}
		matches = append(matches, Match{ID: p.ID, Score: score, Payload: p.Payload})
	}

	// Sort by similarity in descending order, ties by id for stable output.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryIndex) DeleteByVideo(_ context.Context, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.Payload.VideoID == videoID {
			delete(m.points, id)
		}
	}
	return nil
}

// Len returns the number of stored points.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}
