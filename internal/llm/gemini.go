package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"gwi.com/video-qa/internal/observability/logging"
)

const (
	DefaultGeminiChatModel      = "gemini-1.5-flash-latest"
	DefaultGeminiEmbeddingModel = "text-embedding-004"

	// BatchEmbedContents accepts at most 100 requests.
	geminiMaxBatch = 100
)

var errEmptyCompletion = errors.New("provider returned an empty completion")

type GeminiClient struct {
	client *genai.Client
	logger zerolog.Logger
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client: client,
		logger: logging.WithComponent("gemini"),
	}, nil
}

func (g *GeminiClient) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			g.logger.Error().Err(err).Msg("Error closing GenAI client")
		} else {
			g.logger.Info().Msg("GenAI client closed")
		}
	}
}

func (g *GeminiClient) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}
	if model == "" {
		model = DefaultGeminiEmbeddingModel
	}
	em := g.client.EmbeddingModel(model)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}
		if res == nil || len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", embeddingCount(res), end-start)
		}
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("no embedding data received from gemini for text %d", start+i)
			}
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

func embeddingCount(res *genai.BatchEmbedContentsResponse) int {
	if res == nil {
		return 0
	}
	return len(res.Embeddings)
}

func (g *GeminiClient) Generate(ctx context.Context, prompt Prompt, model string) (string, error) {
	if model == "" {
		model = DefaultGeminiChatModel
	}
	gm := g.client.GenerativeModel(model)
	if prompt.System != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(prompt.System)},
		}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", fmt.Errorf("gemini generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		g.logger.Warn().Str("model", model).Msg("Gemini response was empty or had no valid candidates/parts")
		return "", errEmptyCompletion
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			g.logger.Debug().Str("type", fmt.Sprintf("%T", part)).Msg("Gemini response part was not text")
		}
	}

	if responseText.Len() == 0 {
		return "", errEmptyCompletion
	}
	return responseText.String(), nil
}
