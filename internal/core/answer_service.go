package core

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/apperr"
	"gwi.com/video-qa/internal/llm"
	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/observability/metrics"
	"gwi.com/video-qa/internal/store"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidVideoID reports whether id is a well-formed video identifier.
func ValidVideoID(id string) bool {
	return videoIDRe.MatchString(id)
}

// AskRequest is one question. Provider and Model override the configured generation
// defaults when set.
type AskRequest struct {
	Question string             `json:"question"`
	VideoID  string             `json:"video_id,omitempty"`
	History  []ConversationTurn `json:"history,omitempty"`
	TopK     int                `json:"top_k,omitempty"`
	Language string             `json:"language,omitempty"`
	Provider string             `json:"provider,omitempty"`
	Model    string             `json:"model,omitempty"`
}

// AnswerService runs the question path: classify, retrieve, generate, record.
type AnswerService struct {
	cfg       PipelineConfig
	retriever *Retriever
	registry  *llm.Registry
	analytics AnalyticsRecorder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAnswerService(cfg PipelineConfig, retriever *Retriever, registry *llm.Registry, analytics AnalyticsRecorder, m *metrics.Metrics) *AnswerService {
	return &AnswerService{
		cfg:       cfg.withDefaults(),
		retriever: retriever,
		registry:  registry,
		analytics: analytics,
		metrics:   m,
		logger:    logging.WithComponent("answer"),
		now:       time.Now,
	}
}

func (s *AnswerService) validate(req AskRequest) error {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return apperr.Input("question must not be empty")
	}
	if utf8.RuneCountInString(q) > s.cfg.MaxQuestionLength {
		return apperr.Input("question exceeds %d characters", s.cfg.MaxQuestionLength)
	}
	if req.VideoID != "" && !ValidVideoID(req.VideoID) {
		return apperr.Input("malformed video id %q", req.VideoID)
	}
	if req.TopK < 0 {
		return apperr.Input("top_k must not be negative")
	}
	for i, t := range req.History {
		role := strings.ToLower(t.Role)
		if role != "user" && role != "assistant" {
			return apperr.Input("history turn %d has unknown role %q", i, t.Role)
		}
	}
	return nil
}

// generationTarget resolves the provider and model for a request.
func (s *AnswerService) generationTarget(req AskRequest) (llm.Provider, string, error) {
	if req.Provider == "" {
		model := s.cfg.GenerationModel
		if req.Model != "" {
			model = req.Model
		}
		return s.cfg.GenerationProvider, model, nil
	}
	p, err := llm.ParseProvider(req.Provider)
	if err != nil {
		return "", "", apperr.Wrap(err, apperr.CodeInput, err.Error())
	}
	model := req.Model
	if model == "" && p == s.cfg.GenerationProvider {
		model = s.cfg.GenerationModel
	}
	return p, model, nil
}

func (s *AnswerService) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	start := s.now()

	if err := s.validate(req); err != nil {
		s.metrics.RecordRejectedQuestion()
		return nil, err
	}
	provider, model, err := s.generationTarget(req)
	if err != nil {
		s.metrics.RecordRejectedQuestion()
		return nil, err
	}

	mode := ClassifyMode(req.Question, req.History)
	logger := s.logger.With().Str("videoId", req.VideoID).Str("mode", mode.String()).Logger()
	logger.Debug().Msg("Classified question")

	retrieved, err := s.retriever.Retrieve(ctx, RetrievalRequest{
		Question: req.Question,
		VideoID:  req.VideoID,
		TopK:     req.TopK,
		Language: req.Language,
		Mode:     mode,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Retrieval failed")
		return nil, err
	}

	answer := &Answer{Mode: mode, RetrievedChunks: retrieved.Chunks}
	switch {
	case retrieved.UsedSummary:
		answer.Text = retrieved.Summary
		answer.UsedSummary = true
	case retrieved.Empty:
		answer.Text = NoRelevantInfoAnswer
	default:
		text, err := s.generate(ctx, provider, model, BuildPrompt(PromptInput{
			Mode:     mode,
			Question: req.Question,
			History:  req.History,
			Context:  retrieved.Context,
			Language: req.Language,
		}))
		if err != nil {
			logger.Error().Err(err).Str("provider", provider.String()).Msg("Generation failed")
			return nil, err
		}
		answer.Text = text
		answer.Provider = provider.String()
		answer.Model = model

		if unknown := UnknownCitations(text, retrieved.Chunks); len(unknown) > 0 {
			s.metrics.RecordUnknownCitations(len(unknown))
			logger.Warn().Strs("citations", unknown).Msg("Answer cites timestamps that were not in the context")
		}
	}

	answer.ResponseTimeSeconds = s.now().Sub(start).Seconds()
	s.metrics.RecordAnswer(mode.String(), answer.ResponseTimeSeconds, len(answer.RetrievedChunks), answer.UsedSummary)
	s.record(ctx, req, answer)

	logger.Info().
		Int("chunks", len(answer.RetrievedChunks)).
		Bool("usedSummary", answer.UsedSummary).
		Float64("responseTimeSeconds", answer.ResponseTimeSeconds).
		Msg("Answered question")
	return answer, nil
}

func (s *AnswerService) generate(ctx context.Context, provider llm.Provider, model string, prompt llm.Prompt) (string, error) {
	gen, err := s.registry.Generator(provider)
	if err != nil {
		return "", apperr.Upstream(err, "generation", provider.String())
	}
	text, err := gen.Generate(ctx, prompt, model)
	if err != nil {
		s.metrics.RecordUpstreamError("generation", provider.String())
		return "", apperr.Upstream(err, "generation", provider.String())
	}
	return strings.TrimSpace(text), nil
}

func (s *AnswerService) record(ctx context.Context, req AskRequest, a *Answer) {
	if s.analytics == nil {
		return
	}
	rec := store.AnalyticsRecord{
		ID:                  uuid.NewString(),
		VideoID:             req.VideoID,
		Question:            req.Question,
		Answer:              a.Text,
		Mode:                a.Mode.String(),
		ResponseTimeSeconds: a.ResponseTimeSeconds,
		Provider:            a.Provider,
		Model:               a.Model,
		ChunksUsed:          len(a.RetrievedChunks),
		UsedSummary:         a.UsedSummary,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.analytics.RecordAnalytics(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("analyticsId", rec.ID).Msg("Failed to record analytics")
	}
}
