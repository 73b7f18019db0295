package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender delivers outbound messages on the WhatsApp channel. The processor
// only decides whether and what to send; delivery is this boundary's
// concern.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
	SendMenu(ctx context.Context, phone string, options []MenuOption) error
}

// CloudSender posts to the WhatsApp Cloud API.
type CloudSender struct {
	baseURL     string
	accessToken string
	phoneID     string
	client      *http.Client
}

func NewCloudSender(baseURL, accessToken, phoneID string) *CloudSender {
	return &CloudSender{
		baseURL:     baseURL,
		accessToken: accessToken,
		phoneID:     phoneID,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *CloudSender) SendText(ctx context.Context, phone, text string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	return s.post(ctx, payload)
}

func (s *CloudSender) SendMenu(ctx context.Context, phone string, options []MenuOption) error {
	rows := make([]map[string]string, 0, len(options))
	for _, option := range options {
		rows = append(rows, map[string]string{
			"id":    option.ServiceID,
			"title": option.Title,
		})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                phone,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "list",
			"body": map[string]string{"text": "Which service do you need help with?"},
			"action": map[string]any{
				"button":   "Choose",
				"sections": []map[string]any{{"rows": rows}},
			},
		},
	}
	return s.post(ctx, payload)
}

func (s *CloudSender) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp send failed with status %d", resp.StatusCode)
	}
	return nil
}
