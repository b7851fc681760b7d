package core

import (
	"context"

	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/store"
)

// NamedRecorder labels a recorder for logs.
type NamedRecorder struct {
	Name     string
	Recorder AnalyticsRecorder
}

// AnalyticsFanout sends each record to every sink in turn. A failing sink is logged and
// skipped; RecordAnalytics never returns an error.
type AnalyticsFanout struct {
	sinks  []NamedRecorder
	logger zerolog.Logger
}

func NewAnalyticsFanout(sinks ...NamedRecorder) *AnalyticsFanout {
	kept := make([]NamedRecorder, 0, len(sinks))
	for _, s := range sinks {
		if s.Recorder != nil {
			kept = append(kept, s)
		}
	}
	return &AnalyticsFanout{sinks: kept, logger: logging.WithComponent("analytics")}
}

func (f *AnalyticsFanout) RecordAnalytics(ctx context.Context, rec store.AnalyticsRecord) error {
	for _, s := range f.sinks {
		if err := s.Recorder.RecordAnalytics(ctx, rec); err != nil {
			f.logger.Warn().
				Err(err).
				Str("sink", s.Name).
				Str("analyticsId", rec.ID).
				Str("videoId", rec.VideoID).
				Msg("Failed to record analytics")
		}
	}
	return nil
}
