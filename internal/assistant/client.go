// Package assistant is the boundary to the AI assistant provider. The rest
// of the system treats it as opaque request/response calls.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response is a completed assistant run. Raw carries the provider's
// structured output (typically {"value": ..., ...}) for webhook filtering.
type Response struct {
	Text string `json:"text"`
	Raw  string `json:"raw,omitempty"`
}

// Client runs assistant turns against provider-side threads.
type Client interface {
	StartThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID, assistantID, message string) (Response, error)
}

// HTTPClient talks to an OpenAI-style assistants endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) StartThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/threads", map[string]any{}, &out); err != nil {
		return "", fmt.Errorf("start thread: %w", err)
	}
	return out.ID, nil
}

func (c *HTTPClient) Ask(ctx context.Context, threadID, assistantID, message string) (Response, error) {
	var out struct {
		Text string          `json:"text"`
		Raw  json.RawMessage `json:"raw"`
	}
	payload := map[string]any{
		"thread_id":    threadID,
		"assistant_id": assistantID,
		"message":      message,
	}
	if err := c.post(ctx, "/runs", payload, &out); err != nil {
		return Response{}, fmt.Errorf("assistant run: %w", err)
	}
	return Response{Text: out.Text, Raw: string(out.Raw)}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
