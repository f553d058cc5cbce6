package llm

import (
	"context"
	"errors"
	"fmt"

	"catalog-assistant/internal/common/config"

	"google.golang.org/genai"
)

// GeminiCompleter talks to the Gemini API through the genai SDK.
type GeminiCompleter struct {
	client *genai.Client
	cfg    config.GenAIConfig
}

func NewGeminiCompleter(ctx context.Context, cfg config.GenAIConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiCompleter{client: client, cfg: cfg}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	temperature := float32(0.2)
	if tier == TierLarge {
		temperature = 0.7
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelFor(g.cfg, tier), genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp.Text(), nil
}
