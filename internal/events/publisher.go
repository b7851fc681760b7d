// Package events publishes answer analytics to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/store"
)

const sinkName = "kafka"

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Publisher writes one event per answered question. When disabled it only logs.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// AnalyticsEvent is the message value written to the analytics topic.
type AnalyticsEvent struct {
	EventType string                `json:"eventType"`
	Record    store.AnalyticsRecord `json:"record"`
}

// New creates a Kafka analytics publisher.
func New(cfg *Config, m *metrics.Metrics) *Publisher {

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{topic: cfg.Topic, enabled: false, metrics: m}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka analytics publisher initialized")

	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		metrics: m,
	}
}

// RecordAnalytics publishes the record keyed by video id, so one video's events stay ordered.
func (p *Publisher) RecordAnalytics(ctx context.Context, rec store.AnalyticsRecord) error {
	payload, err := json.Marshal(AnalyticsEvent{EventType: "answer.recorded", Record: rec})
	if err != nil {
		log.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal analytics event")
		return err
	}

	log.Debug().
		Str("topic", p.topic).
		Str("videoId", rec.VideoID).
		RawJSON("payload", payload).
		Msg("Publishing analytics event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordAnalytics(sinkName, nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(rec.VideoID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("answer.recorded")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("videoId", rec.VideoID).
			Msg("Failed to write to Kafka")
		p.metrics.RecordAnalytics(sinkName, err)
		return err
	}

	p.metrics.RecordAnalytics(sinkName, nil)
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing analytics writer")
			return err
		}
	}
	return nil
}
