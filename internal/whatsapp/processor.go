package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

// TenantDirectory resolves tenant services for menus and routing.
type TenantDirectory interface {
	GetService(ctx context.Context, serviceID string) (tenants.Service, error)
	ListServices(ctx context.Context, userID string) ([]tenants.Service, error)
}

// Dispatcher fans an AI response out to the tenant's webhooks.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]webhook.Outcome, error)
}

// Processor handles one inbound WhatsApp message end to end. Everything
// after the dedup mark is best-effort: assistant, Jira, and delivery
// failures are logged, not surfaced, so the user sees silence rather than
// an error. Only a conversation store failure aborts processing, since no
// routing decision is safe without a record.
type Processor struct {
	tracker    *conversation.Tracker
	directory  TenantDirectory
	assistants assistant.Client
	tickets    jira.Client
	sender     Sender
	webhooks   Dispatcher
	logger     *slog.Logger

	// genericAssistantID answers pre-selection conversations that are not
	// yet bound to a tenant service.
	genericAssistantID string
}

func NewProcessor(
	log *slog.Logger,
	tracker *conversation.Tracker,
	directory TenantDirectory,
	assistants assistant.Client,
	tickets jira.Client,
	sender Sender,
	webhooks Dispatcher,
	genericAssistantID string,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		tracker:            tracker,
		directory:          directory,
		assistants:         assistants,
		tickets:            tickets,
		sender:             sender,
		webhooks:           webhooks,
		logger:             log.With(slog.String("service", "whatsapp")),
		genericAssistantID: genericAssistantID,
	}
}

// Process routes one inbound message for the tenant owning the channel.
func (p *Processor) Process(ctx context.Context, userID string, msg InboundMessage) error {
	record, err := p.tracker.GetOrCreate(ctx, msg.Phone, msg.Handle, userID)
	if err != nil {
		return fmt.Errorf("conversation upsert: %w", err)
	}

	fresh, err := p.tracker.CheckAndMark(ctx, record.Phone, msg.MessageID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if !fresh {
		// Expected redelivery, dropped with no side effects.
		return nil
	}

	if isMenuCommand(msg.Text) {
		return p.showMenu(ctx, record.Phone, userID)
	}

	if msg.Selection != "" {
		return p.handleSelection(ctx, record, userID, msg)
	}

	if record.Active() {
		p.handleActive(ctx, record, userID, msg)
		return nil
	}

	p.handlePreSelection(ctx, record, userID, msg)
	return nil
}

func (p *Processor) showMenu(ctx context.Context, phone, userID string) error {
	if _, err := p.tracker.Reset(ctx, phone); err != nil {
		return err
	}
	services, err := p.directory.ListServices(ctx, userID)
	if err != nil {
		p.logger.Error("list services for menu failed", slog.Any("error", err))
		return nil
	}
	if err := p.sender.SendMenu(ctx, phone, MenuFromServices(services)); err != nil {
		p.logger.Error("send menu failed", slog.String("phone", phone), slog.Any("error", err))
	}
	return nil
}

func (p *Processor) handleSelection(ctx context.Context, record conversation.Record, userID string, msg InboundMessage) error {
	svc, err := p.directory.GetService(ctx, msg.Selection)
	if err != nil {
		p.logger.Warn("unknown service selection",
			slog.String("selection", msg.Selection),
			slog.Any("error", err))
		return p.showMenu(ctx, record.Phone, userID)
	}

	summary := fmt.Sprintf("WhatsApp conversation with %s", record.Phone)
	ticketKey, err := p.tickets.CreateIssue(ctx, svc.ProjectKey, summary, msg.Text)
	if err != nil {
		p.logger.Error("create ticket for selection failed",
			slog.String("service_id", svc.ID),
			slog.Any("error", err))
		return nil
	}

	if _, err := p.tracker.Activate(ctx, record.Phone, ticketKey, svc.ID); err != nil {
		return err
	}

	confirmation := fmt.Sprintf("You are now connected to %s (ticket %s). How can we help?", svc.Name, ticketKey)
	if err := p.sender.SendText(ctx, record.Phone, confirmation); err != nil {
		p.logger.Error("send confirmation failed", slog.String("phone", record.Phone), slog.Any("error", err))
	}
	return nil
}

func (p *Processor) handleActive(ctx context.Context, record conversation.Record, userID string, msg InboundMessage) {
	svc, err := p.directory.GetService(ctx, record.ServiceID)
	if err != nil {
		p.logger.Error("resolve bound service failed",
			slog.String("service_id", record.ServiceID),
			slog.Any("error", err))
		return
	}

	if err := p.tickets.AddComment(ctx, record.TicketKey, msg.Text); err != nil {
		p.logger.Warn("mirror message to ticket failed",
			slog.String("ticket_key", record.TicketKey),
			slog.Any("error", err))
	}

	resp, err := p.assistants.Ask(ctx, "", svc.AssistantID, msg.Text)
	if err != nil {
		p.logger.Error("assistant run failed",
			slog.String("assistant_id", svc.AssistantID),
			slog.Any("error", err))
		return
	}

	if err := p.sender.SendText(ctx, record.Phone, resp.Text); err != nil {
		p.logger.Error("send reply failed", slog.String("phone", record.Phone), slog.Any("error", err))
	}

	p.fanout(ctx, userID, svc.ID, svc.ProjectKey, record, resp)
}

func (p *Processor) handlePreSelection(ctx context.Context, record conversation.Record, userID string, msg InboundMessage) {
	threadID := record.ThreadID
	if threadID == "" {
		created, err := p.assistants.StartThread(ctx)
		if err != nil {
			p.logger.Error("start assistant thread failed", slog.Any("error", err))
			return
		}
		threadID = created
		if _, err := p.tracker.RecordThread(ctx, record.Phone, threadID); err != nil {
			p.logger.Error("record thread failed", slog.String("phone", record.Phone), slog.Any("error", err))
		}
	}

	resp, err := p.assistants.Ask(ctx, threadID, p.genericAssistantID, msg.Text)
	if err != nil {
		p.logger.Error("assistant run failed", slog.String("thread_id", threadID), slog.Any("error", err))
		return
	}

	if err := p.sender.SendText(ctx, record.Phone, resp.Text); err != nil {
		p.logger.Error("send reply failed", slog.String("phone", record.Phone), slog.Any("error", err))
	}

	// Only global rules can match before a service is selected.
	p.fanout(ctx, userID, "", "", record, resp)
}

func (p *Processor) fanout(ctx context.Context, userID, serviceID, projectKey string, record conversation.Record, resp assistant.Response) {
	payload := map[string]any{
		"event":       "whatsapp.reply",
		"phone":       record.Phone,
		"service_id":  serviceID,
		"ticket_key":  record.TicketKey,
		"reply":       resp.Text,
		"ai_response": resp.Raw,
	}
	if _, err := p.webhooks.Dispatch(ctx, userID, serviceID, projectKey, resp.Raw, payload); err != nil {
		p.logger.Error("webhook fanout failed", slog.Any("error", err))
	}
}

func isMenuCommand(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case CommandMenu, CommandStart:
		return true
	default:
		return false
	}
}
