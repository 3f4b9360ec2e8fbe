package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/retry"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Generator produces content for a system instruction and a user message
type Generator interface {
	Generate(ctx context.Context, system, user string) (*genai.GenerateContentResponse, error)
}

// GeminiClient is an implementation of the LLMClient interface using Google Gemini
type GeminiClient struct {
	gen       Generator
	modelName string
	logger    *zap.Logger
	closer    func() error
}

// modelGenerator builds a fresh model per call so the system instruction
// never leaks between prompts
type modelGenerator struct {
	client      *genai.Client
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
}

func (g *modelGenerator) Generate(ctx context.Context, system, user string) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(g.temperature)
	model.SetTopP(g.topP)
	model.SetMaxOutputTokens(int32(g.maxTokens))
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model.GenerateContent(ctx, genai.Text(user))
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	gen := &modelGenerator{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
	}
	c := NewGeminiClientWithGenerator(gen, modelName, logger)
	c.closer = client.Close
	return c, nil
}

// NewGeminiClientWithGenerator wraps an existing generator
func NewGeminiClientWithGenerator(gen Generator, modelName string, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{gen: gen, modelName: modelName, logger: logger}
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// Complete sends the prompt and joins the text parts of the first candidate
func (c *GeminiClient) Complete(ctx context.Context, prompt core.Prompt) (string, error) {
	resp, err := c.gen.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to generate content with Gemini: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", retry.MarkRetryable(errors.New("empty response from Gemini"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", retry.MarkRetryable(errors.New("no text in Gemini response"))
	}

	c.logger.Debug("Gemini completion",
		zap.String("model", c.modelName),
		zap.String("finish_reason", resp.Candidates[0].FinishReason.String()))

	return sb.String(), nil
}

// classifyError marks quota, overload and server errors as retryable
func classifyError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500 {
			return retry.MarkRetryable(err)
		}
		return err
	}
	if retry.IsRetryable(err) {
		return retry.MarkRetryable(err)
	}

	// the gRPC transport surfaces status names rather than HTTP codes
	msg := err.Error()
	for _, s := range []string{"RESOURCE_EXHAUSTED", "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL"} {
		if strings.Contains(msg, s) {
			return retry.MarkRetryable(err)
		}
	}
	return err
}
