// Package llm exposes the text-completion capability used for parameter
// extraction, restyling and general replies.
package llm

import (
	"context"
	"errors"
	"fmt"

	"catalog-assistant/internal/common/config"
	apperrors "catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
)

// Tier selects between the cheap extraction model and the larger prose model.
type Tier string

const (
	TierSmall Tier = "small"
	TierLarge Tier = "large"
)

var (
	ErrTimeout     = errors.New("LLM_TIMEOUT")
	ErrUnavailable = errors.New("LLM_UNAVAILABLE")
)

// Classify maps a completion error onto the service error taxonomy.
func Classify(err error) *apperrors.StandardError {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewLLMTimeoutError()
	}
	return apperrors.NewLLMUnavailableError(err)
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string, tier Tier) (string, error)
}

// New builds the configured completer wrapped in a circuit breaker.
// Provider "none" yields a nil Completer and the pipeline runs degraded.
func New(ctx context.Context, cfg config.GenAIConfig, log logger.Logger) (Completer, error) {
	var inner Completer
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "http":
		inner = NewHTTPCompleter(cfg, log)
	case "gemini":
		g, err := NewGeminiCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown genai provider %q", cfg.Provider)
	}
	return NewBreakerCompleter(inner, cfg.Breaker, log), nil
}

func modelFor(cfg config.GenAIConfig, tier Tier) string {
	if tier == TierLarge {
		return cfg.LargeModel
	}
	return cfg.SmallModel
}
