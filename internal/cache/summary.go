// Package cache keeps precomputed video summaries close to the answer path.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/observability/logging"
)

const keyPrefix = "video-qa:summary:"

// SummaryStore is the durable home of video summaries.
type SummaryStore interface {
	GetSummary(ctx context.Context, videoID string) (string, bool, error)
	SetSummary(ctx context.Context, videoID, summary string) error
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis establishes a connection to Redis.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// SummaryCache is a read-through Redis cache in front of a SummaryStore. With a nil
// Redis client it reads and writes the store directly. Redis failures are logged and
// never fail a lookup.
type SummaryCache struct {
	rdb     *redis.Client
	backing SummaryStore
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewSummaryCache(rdb *redis.Client, backing SummaryStore, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		rdb:     rdb,
		backing: backing,
		ttl:     ttl,
		logger:  logging.WithComponent("summary-cache"),
	}
}

func summaryKey(videoID string) string {
	return keyPrefix + videoID
}

func (c *SummaryCache) GetSummary(ctx context.Context, videoID string) (string, bool, error) {
	if c.rdb != nil {
		summary, err := c.rdb.Get(ctx, summaryKey(videoID)).Result()
		switch {
		case err == nil && summary != "":
			return summary, true, nil
		case err != nil && !errors.Is(err, redis.Nil):
			c.logger.Warn().Err(err).Str("videoId", videoID).Msg("Redis summary lookup failed, reading store")
		}
	}

	summary, ok, err := c.backing.GetSummary(ctx, videoID)
	if err != nil || !ok {
		return "", false, err
	}
	c.fill(ctx, videoID, summary)
	return summary, true, nil
}

func (c *SummaryCache) SetSummary(ctx context.Context, videoID, summary string) error {
	if err := c.backing.SetSummary(ctx, videoID, summary); err != nil {
		return err
	}
	c.fill(ctx, videoID, summary)
	return nil
}

func (c *SummaryCache) fill(ctx context.Context, videoID, summary string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, summaryKey(videoID), summary, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("videoId", videoID).Msg("Failed to cache summary")
	}
}
