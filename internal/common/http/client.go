// Package http is the outbound JSON client shared by model gateways.
package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const userAgent = "catalog-assistant"

type Client struct {
	httpClient *http.Client
	headers    map[string]string
}

// NewClient returns a client whose requests are capped at timeout. Headers
// are sent with every request.
func NewClient(timeout time.Duration, headers map[string]string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
	}
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.httpClient.Do(req)
}

// PostJSON sends body as a fresh request each call, so it is safe to retry.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}
