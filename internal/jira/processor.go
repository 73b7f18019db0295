package jira

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

// Directory resolves the tenant service and settings for a project.
type Directory interface {
	FindServiceByProject(ctx context.Context, userID, projectKey string) (tenants.Service, error)
	GetConfig(ctx context.Context, userID string) (tenants.Config, error)
}

// Assistant runs one turn against the service's assistant.
type Assistant interface {
	Ask(ctx context.Context, threadID, assistantID, message string) (assistant.Response, error)
}

// Conversations reverse-looks-up the active conversation for a ticket.
type Conversations interface {
	FindByTicketKey(ctx context.Context, ticketKey string) (conversation.Record, error)
}

// Notifier relays the reply to the conversation's phone.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
}

// Dispatcher fans the AI response out to the tenant's webhooks.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]webhook.Outcome, error)
}

// CommentEvent is one ticket comment delivered by the upstream webhook.
type CommentEvent struct {
	TicketKey  string
	ProjectKey string
	Body       string
	Author     string
}

// Processor handles the Jira-comment path: a customer comment yields an AI
// reply posted back to the ticket, relayed to a bound WhatsApp conversation
// when one exists, and fanned out to the tenant's webhooks.
type Processor struct {
	directory     Directory
	assistants    Assistant
	client        Client
	conversations Conversations
	notifier      Notifier
	webhooks      Dispatcher
	logger        *slog.Logger

	// botAccount is the integration's own Jira account; its comments are
	// skipped to avoid replying to ourselves.
	botAccount string
}

func NewProcessor(
	log *slog.Logger,
	directory Directory,
	assistants Assistant,
	client Client,
	conversations Conversations,
	notifier Notifier,
	webhooks Dispatcher,
	botAccount string,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		directory:     directory,
		assistants:    assistants,
		client:        client,
		conversations: conversations,
		notifier:      notifier,
		webhooks:      webhooks,
		logger:        log.With(slog.String("service", "jira")),
		botAccount:    botAccount,
	}
}

// HandleComment routes one comment event for the tenant.
func (p *Processor) HandleComment(ctx context.Context, userID string, event CommentEvent) error {
	if strings.TrimSpace(event.TicketKey) == "" {
		return fmt.Errorf("ticket key is required")
	}
	if p.botAccount != "" && event.Author == p.botAccount {
		return nil
	}

	cfg, err := p.directory.GetConfig(ctx, userID)
	if err != nil && !errors.Is(err, tenants.ErrConfigNotFound) {
		return fmt.Errorf("load tenant config: %w", err)
	}
	if cfg.TicketDisabled(event.TicketKey) {
		p.logger.Debug("ticket disabled for automation", slog.String("ticket_key", event.TicketKey))
		return nil
	}

	svc, err := p.directory.FindServiceByProject(ctx, userID, event.ProjectKey)
	if err != nil {
		p.logger.Debug("no service bound to project",
			slog.String("project_key", event.ProjectKey))
		return nil
	}

	resp, err := p.assistants.Ask(ctx, "", svc.AssistantID, event.Body)
	if err != nil {
		p.logger.Error("assistant run failed",
			slog.String("assistant_id", svc.AssistantID),
			slog.Any("error", err))
		return nil
	}

	if err := p.client.AddComment(ctx, event.TicketKey, resp.Text); err != nil {
		p.logger.Error("post reply comment failed",
			slog.String("ticket_key", event.TicketKey),
			slog.Any("error", err))
	}

	if record, err := p.conversations.FindByTicketKey(ctx, event.TicketKey); err == nil {
		if err := p.notifier.SendText(ctx, record.Phone, resp.Text); err != nil {
			p.logger.Error("relay to phone failed",
				slog.String("phone", record.Phone),
				slog.Any("error", err))
		}
	} else if !errors.Is(err, conversation.ErrNotFound) {
		p.logger.Warn("conversation lookup failed",
			slog.String("ticket_key", event.TicketKey),
			slog.Any("error", err))
	}

	payload := map[string]any{
		"event":       "jira.reply",
		"ticket_key":  event.TicketKey,
		"service_id":  svc.ID,
		"reply":       resp.Text,
		"ai_response": resp.Raw,
	}
	if _, err := p.webhooks.Dispatch(ctx, userID, svc.ID, svc.ProjectKey, resp.Raw, payload); err != nil {
		p.logger.Error("webhook fanout failed", slog.Any("error", err))
	}
	return nil
}
