package core

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/video-qa/internal/apperr"
)

func TestAsk_CachedSummaryShortCircuits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.UpsertVideo(ctx, "vid", "Deep Sea Creatures"))
	require.NoError(t, h.summaries.SetSummary(ctx, "vid", "A dive into the midnight zone."))

	answer, err := h.answers.Ask(ctx, AskRequest{Question: "What is this video about?", VideoID: "vid"})

	require.NoError(t, err)
	assert.Equal(t, "A dive into the midnight zone.", answer.Text)
	assert.Equal(t, ModeSummary, answer.Mode)
	assert.True(t, answer.UsedSummary)
	assert.Empty(t, answer.RetrievedChunks)
	assert.Equal(t, 0, h.gemini.callCount(), "no embedding call")
	assert.Equal(t, 0, h.generator.calls)

	require.Len(t, h.analytics.records, 1)
	assert.True(t, h.analytics.records[0].UsedSummary)
	assert.Equal(t, "summary", h.analytics.records[0].Mode)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SummaryFastPath))
}

func TestAsk_EmptyRetrievalReturnsCannedAnswer(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}

	answer, err := h.answers.Ask(context.Background(), AskRequest{Question: "Where is the shipwreck?", VideoID: "vid"})

	require.NoError(t, err)
	assert.Equal(t, NoRelevantInfoAnswer, answer.Text)
	assert.Empty(t, answer.RetrievedChunks)
	assert.Equal(t, 0, h.generator.calls, "no generation call")
	require.Len(t, h.analytics.records, 1)
	assert.Equal(t, 0, h.analytics.records[0].ChunksUsed)
}

func TestAsk_GeneratesGroundedAnswer(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}
	h.seedPoints(t,
		point("a", []float32{1, 0}, "vid", 0, 4, 49, "The anglerfish lures prey with light."),
		point("b", []float32{0.5, 0.5}, "vid", 1, 37, 82, "Pressure at depth."),
	)

	answer, err := h.answers.Ask(context.Background(), AskRequest{
		Question: "Tell me more about that",
		VideoID:  "vid",
		History:  priorTurn,
		Language: "en",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeExpansion, answer.Mode)
	assert.Equal(t, "The anglerfish appears at [00:04–00:49].", answer.Text)
	assert.Equal(t, "gemini", answer.Provider)
	assert.Equal(t, h.cfg.GenerationModel, answer.Model)
	require.Len(t, answer.RetrievedChunks, 2)
	assert.GreaterOrEqual(t, answer.ResponseTimeSeconds, 0.0)

	require.Equal(t, 1, h.generator.calls)
	prompt := h.generator.prompts[0]
	assert.Contains(t, prompt.System, "MODE: EXPANSION")
	assert.Contains(t, prompt.User, "SOURCE 1 | [00:04–00:49]")
	assert.Contains(t, prompt.User, "It follows a submersible dive")

	// Every cited label can be traced to a retrieved chunk.
	assert.Empty(t, UnknownCitations(answer.Text, answer.RetrievedChunks))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.UnknownCitations))

	require.Len(t, h.analytics.records, 1)
	rec := h.analytics.records[0]
	assert.Equal(t, "vid", rec.VideoID)
	assert.Equal(t, 2, rec.ChunksUsed)
	assert.Equal(t, "gemini", rec.Provider)
	assert.NotEmpty(t, rec.ID)
}

func TestAsk_UnknownCitationIsCountedNotRejected(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}
	h.generator.reply = "Shown at [09:00–09:45]."
	h.seedPoints(t, point("a", []float32{1, 0}, "vid", 0, 4, 49, "text"))

	answer, err := h.answers.Ask(context.Background(), AskRequest{Question: "Why?", VideoID: "vid", History: priorTurn})

	require.NoError(t, err)
	assert.Equal(t, "Shown at [09:00–09:45].", answer.Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.UnknownCitations))
}

func TestAsk_ProviderOverride(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}
	h.seedPoints(t, point("a", []float32{1, 0}, "vid", 0, 4, 49, "text"))

	answer, err := h.answers.Ask(context.Background(), AskRequest{
		Question: "Why?", VideoID: "vid", History: priorTurn, Provider: "OpenAI", Model: "gpt-4o",
	})

	require.NoError(t, err)
	assert.Equal(t, "From OpenAI.", answer.Text)
	assert.Equal(t, "openai", answer.Provider)
	assert.Equal(t, []string{"gpt-4o"}, h.openaiGen.models)
	assert.Equal(t, 0, h.generator.calls)
	assert.Equal(t, 1, h.gemini.callCount(), "query embedding provider is independent of generation provider")
}

func TestAsk_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		req  AskRequest
	}{
		{"empty question", AskRequest{Question: "   "}},
		{"too long", AskRequest{Question: strings.Repeat("a", DefaultMaxQuestionLength+1)}},
		{"malformed video id", AskRequest{Question: "q", VideoID: "../etc/passwd"}},
		{"negative top k", AskRequest{Question: "q", TopK: -1}},
		{"unknown role", AskRequest{Question: "q", History: []ConversationTurn{{Role: "system", Content: "x"}}}},
		{"unknown provider", AskRequest{Question: "q", Provider: "cohere"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.answers.Ask(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeInput), "got %v", err)
			assert.Equal(t, 0, h.gemini.callCount())
			assert.Empty(t, h.analytics.records)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RejectedQuestions))
		})
	}
}

func TestAsk_GenerationFailure(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}
	h.generator.err = errProviderDown
	h.seedPoints(t, point("a", []float32{1, 0}, "vid", 0, 4, 49, "text"))

	_, err := h.answers.Ask(context.Background(), AskRequest{Question: "Why?", VideoID: "vid", History: priorTurn})

	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeUpstream, appErr.Code)
	assert.Equal(t, "generation", appErr.Metadata["stage"])
	assert.NotContains(t, appErr.UserMessage(false), "quota", "provider text stays out of user messages")
	assert.Contains(t, appErr.UserMessage(true), "quota")
	assert.Empty(t, h.analytics.records)
}

func TestAsk_AnalyticsFailureDoesNotFailAnswer(t *testing.T) {
	h := newHarness(t)
	h.gemini.vector = []float32{1, 0}
	h.analytics.err = errProviderDown

	answer, err := h.answers.Ask(context.Background(), AskRequest{Question: "Where?", VideoID: "vid"})

	require.NoError(t, err)
	assert.Equal(t, NoRelevantInfoAnswer, answer.Text)
}

func TestValidVideoID(t *testing.T) {
	assert.True(t, ValidVideoID("dQw4w9WgXcQ"))
	assert.True(t, ValidVideoID("my_video-01"))
	assert.False(t, ValidVideoID(""))
	assert.False(t, ValidVideoID("has space"))
	assert.False(t, ValidVideoID(strings.Repeat("a", 65)))
}
