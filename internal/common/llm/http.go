package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"catalog-assistant/internal/common/config"
	httpclient "catalog-assistant/internal/common/http"
	"catalog-assistant/internal/common/logger"
)

// HTTPCompleter calls the GenAI gateway's generate endpoint.
type HTTPCompleter struct {
	cfg    config.GenAIConfig
	client *httpclient.Client
	logger logger.Logger
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func NewHTTPCompleter(cfg config.GenAIConfig, log logger.Logger) *HTTPCompleter {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	return &HTTPCompleter{
		cfg:    cfg,
		client: httpclient.NewClient(timeout, headers),
		logger: log.With(map[string]interface{}{"provider": "http"}),
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, prompt string, tier Tier) (string, error) {
	reqBody := generateRequest{
		Prompt:      prompt,
		Model:       modelFor(c.cfg, tier),
		MaxTokens:   512,
		Temperature: 0.2,
	}
	if tier == TierLarge {
		reqBody.MaxTokens = 1024
		reqBody.Temperature = 0.7
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrTimeout
			}
		}

		resp, lastErr = c.client.PostJSON(ctx, c.cfg.BaseURL+"/api/ai/generate", body)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			if resp != nil {
				resp.Body.Close()
			}
			return "", ErrTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		c.logger.Debug("generate attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   lastErr,
		})
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	return out.Text, nil
}
