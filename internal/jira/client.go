// Package jira is the boundary to the Jira Cloud REST API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client covers the minimal Jira surface the dispatch paths need.
type Client interface {
	CreateIssue(ctx context.Context, projectKey, summary, description string) (string, error)
	AddComment(ctx context.Context, ticketKey, body string) error
}

// HTTPClient calls the Jira Cloud v2 REST API with basic auth.
type HTTPClient struct {
	baseURL  string
	email    string
	apiToken string
	client   *http.Client
}

func NewHTTPClient(baseURL, email, apiToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		email:    email,
		apiToken: apiToken,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) CreateIssue(ctx context.Context, projectKey, summary, description string) (string, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": projectKey},
			"summary":     summary,
			"description": description,
			"issuetype":   map[string]string{"name": "Task"},
		},
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := c.post(ctx, "/rest/api/2/issue", payload, &out); err != nil {
		return "", fmt.Errorf("create issue in %s: %w", projectKey, err)
	}
	return out.Key, nil
}

func (c *HTTPClient) AddComment(ctx context.Context, ticketKey, body string) error {
	payload := map[string]string{"body": body}
	if err := c.post(ctx, "/rest/api/2/issue/"+ticketKey+"/comment", payload, nil); err != nil {
		return fmt.Errorf("comment on %s: %w", ticketKey, err)
	}
	return nil
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
	req.SetBasicAuth(c.email, c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
