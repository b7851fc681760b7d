package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/observability/logging"
)

const (
	DefaultCollection = "video_transcript_chunks"
	payloadVideoID    = "video_id"
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize uint64
}

// QdrantIndex stores chunk vectors in a Qdrant collection using cosine distance.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     zerolog.Logger
}

func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		logger:     logging.WithComponent("qdrant"),
	}
	if err := idx.ensureCollection(ctx, cfg.VectorSize); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, vectorSize uint64) error {
	existing, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range existing {
		if name == q.collection {
			return nil
		}
	}
	if vectorSize == 0 {
		return fmt.Errorf("collection %s does not exist and no vector size is configured", q.collection)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	q.logger.Info().Str("collection", q.collection).Uint64("vectorSize", vectorSize).Msg("Created qdrant collection")
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         buildPoints(points),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", err)
	}
	return len(points), nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	limit := uint64(topK)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		if m, ok := matchFromHit(hit); ok {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteByVideo(ctx context.Context, videoID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildFilter(Filter{VideoID: videoID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points for video %s: %w", videoID, err)
	}
	return nil
}

func buildPoints(points []Point) []*qdrant.PointStruct {
	out := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		out[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadVideoID: p.Payload.VideoID,
				"video_title":  p.Payload.VideoTitle,
				"chunk_index":  p.Payload.ChunkIndex,
				"text":         p.Payload.Text,
				"start_time":   p.Payload.StartTime,
				"end_time":     p.Payload.EndTime,
			}),
		}
	}
	return out
}

func buildFilter(filter Filter) *qdrant.Filter {
	if filter.VideoID == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadVideoID, filter.VideoID),
		},
	}
}

func matchFromHit(hit *qdrant.ScoredPoint) (Match, bool) {
	payload := hit.GetPayload()
	if payload == nil {
		return Match{}, false
	}
	return Match{
		ID:    hit.GetId().GetUuid(),
		Score: hit.GetScore(),
		Payload: Payload{
			VideoID:    payload[payloadVideoID].GetStringValue(),
			VideoTitle: payload["video_title"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Text:       payload["text"].GetStringValue(),
			StartTime:  numberValue(payload["start_time"]),
			EndTime:    numberValue(payload["end_time"]),
		},
	}, true
}

// numberValue reads a numeric payload that may have been stored as integer or double.
func numberValue(v *qdrant.Value) float64 {
	if v == nil {
		return 0
	}
	if _, ok := v.GetKind().(*qdrant.Value_IntegerValue); ok {
		return float64(v.GetIntegerValue())
	}
	return v.GetDoubleValue()
}
