package jira

import (
	"context"
	"errors"
	"testing"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

type fakeDirectory struct {
	getConfig   func(ctx context.Context, userID string) (tenants.Config, error)
	findService func(ctx context.Context, userID, projectKey string) (tenants.Service, error)
}

func (f *fakeDirectory) GetConfig(ctx context.Context, userID string) (tenants.Config, error) {
	if f.getConfig != nil {
		return f.getConfig(ctx, userID)
	}
	return tenants.Config{}, tenants.ErrConfigNotFound
}

func (f *fakeDirectory) FindServiceByProject(ctx context.Context, userID, projectKey string) (tenants.Service, error) {
	if f.findService != nil {
		return f.findService(ctx, userID, projectKey)
	}
	return tenants.Service{}, tenants.ErrServiceNotFound
}

type fakeAssistant struct {
	asks  int
	reply string
	err   error
}

func (f *fakeAssistant) Ask(ctx context.Context, threadID, assistantID, message string) (assistant.Response, error) {
	f.asks++
	if f.err != nil {
		return assistant.Response{}, f.err
	}
	return assistant.Response{Text: f.reply, Raw: `{"value":"normal"}`}, nil
}

type fakeTickets struct {
	comments  []string
	createErr error
	addErr    error
}

func (f *fakeTickets) CreateIssue(ctx context.Context, projectKey, summary, description string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return projectKey + "-1", nil
}

func (f *fakeTickets) AddComment(ctx context.Context, ticketKey, body string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.comments = append(f.comments, ticketKey+": "+body)
	return nil
}

type fakeConversations struct {
	record conversation.Record
	err    error
}

func (f *fakeConversations) FindByTicketKey(ctx context.Context, ticketKey string) (conversation.Record, error) {
	if f.err != nil {
		return conversation.Record{}, f.err
	}
	return f.record, nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) SendText(ctx context.Context, phone, text string) error {
	f.sent = append(f.sent, phone+": "+text)
	return nil
}

type fakeDispatcher struct {
	calls []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]webhook.Outcome, error) {
	f.calls = append(f.calls, userID+"/"+serviceID+"/"+projectKey)
	return nil, nil
}

func supportService() tenants.Service {
	return tenants.Service{ID: "svc-1", UserID: "user-1", ProjectKey: "SUP", AssistantID: "asst-sup"}
}

func TestHandleComment_RepliesRelaysAndFansOut(t *testing.T) {
	t.Parallel()

	assistants := &fakeAssistant{reply: "we are on it"}
	tickets := &fakeTickets{}
	notifier := &fakeNotifier{}
	dispatcher := &fakeDispatcher{}
	directory := &fakeDirectory{
		findService: func(ctx context.Context, userID, projectKey string) (tenants.Service, error) {
			if projectKey != "SUP" {
				return tenants.Service{}, tenants.ErrServiceNotFound
			}
			return supportService(), nil
		},
	}
	conversations := &fakeConversations{
		record: conversation.Record{Phone: "15550001111", State: conversation.StateActive, TicketKey: "SUP-7"},
	}

	p := NewProcessor(nil, directory, assistants, tickets, conversations, notifier, dispatcher, "")
	err := p.HandleComment(context.Background(), "user-1", CommentEvent{
		TicketKey:  "SUP-7",
		ProjectKey: "SUP",
		Body:       "any update?",
		Author:     "customer",
	})
	if err != nil {
		t.Fatalf("HandleComment: %v", err)
	}

	if len(tickets.comments) != 1 || tickets.comments[0] != "SUP-7: we are on it" {
		t.Fatalf("comments=%v", tickets.comments)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "15550001111: we are on it" {
		t.Fatalf("sent=%v", notifier.sent)
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != "user-1/svc-1/SUP" {
		t.Fatalf("dispatch calls=%v", dispatcher.calls)
	}
}

func TestHandleComment_DisabledTicketIgnored(t *testing.T) {
	t.Parallel()

	assistants := &fakeAssistant{reply: "should not run"}
	tickets := &fakeTickets{}
	directory := &fakeDirectory{
		getConfig: func(ctx context.Context, userID string) (tenants.Config, error) {
			return tenants.Config{DisabledTickets: []string{"SUP-7"}}, nil
		},
	}

	p := NewProcessor(nil, directory, assistants, tickets, &fakeConversations{err: conversation.ErrNotFound}, &fakeNotifier{}, &fakeDispatcher{}, "")
	if err := p.HandleComment(context.Background(), "user-1", CommentEvent{TicketKey: "SUP-7", ProjectKey: "SUP", Body: "hi"}); err != nil {
		t.Fatalf("HandleComment: %v", err)
	}
	if assistants.asks != 0 {
		t.Fatalf("assistant ran for disabled ticket")
	}
	if len(tickets.comments) != 0 {
		t.Fatalf("comments=%v", tickets.comments)
	}
}

func TestHandleComment_OwnCommentSkipped(t *testing.T) {
	t.Parallel()

	assistants := &fakeAssistant{reply: "loop"}
	directory := &fakeDirectory{
		findService: func(ctx context.Context, userID, projectKey string) (tenants.Service, error) {
			return supportService(), nil
		},
	}

	p := NewProcessor(nil, directory, assistants, &fakeTickets{}, &fakeConversations{err: conversation.ErrNotFound}, &fakeNotifier{}, &fakeDispatcher{}, "bridge-bot")
	if err := p.HandleComment(context.Background(), "user-1", CommentEvent{TicketKey: "SUP-7", ProjectKey: "SUP", Body: "echo", Author: "bridge-bot"}); err != nil {
		t.Fatalf("HandleComment: %v", err)
	}
	if assistants.asks != 0 {
		t.Fatalf("assistant replied to its own comment")
	}
}

func TestHandleComment_NoServiceBound(t *testing.T) {
	t.Parallel()

	assistants := &fakeAssistant{reply: "unused"}
	dispatcher := &fakeDispatcher{}

	p := NewProcessor(nil, &fakeDirectory{}, assistants, &fakeTickets{}, &fakeConversations{err: conversation.ErrNotFound}, &fakeNotifier{}, dispatcher, "")
	if err := p.HandleComment(context.Background(), "user-1", CommentEvent{TicketKey: "OTHER-3", ProjectKey: "OTHER", Body: "hi"}); err != nil {
		t.Fatalf("HandleComment: %v", err)
	}
	if assistants.asks != 0 || len(dispatcher.calls) != 0 {
		t.Fatalf("processing ran without a bound service")
	}
}

func TestHandleComment_NoConversationStillComments(t *testing.T) {
	t.Parallel()

	tickets := &fakeTickets{}
	notifier := &fakeNotifier{}
	directory := &fakeDirectory{
		findService: func(ctx context.Context, userID, projectKey string) (tenants.Service, error) {
			return supportService(), nil
		},
	}

	p := NewProcessor(nil, directory, &fakeAssistant{reply: "noted"}, tickets, &fakeConversations{err: conversation.ErrNotFound}, notifier, &fakeDispatcher{}, "")
	if err := p.HandleComment(context.Background(), "user-1", CommentEvent{TicketKey: "SUP-9", ProjectKey: "SUP", Body: "thanks"}); err != nil {
		t.Fatalf("HandleComment: %v", err)
	}
	if len(tickets.comments) != 1 {
		t.Fatalf("comments=%v", tickets.comments)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("sent=%v", notifier.sent)
	}
}

func TestHandleComment_AssistantFailureSwallowed(t *testing.T) {
	t.Parallel()

	tickets := &fakeTickets{}
	dispatcher := &fakeDispatcher{}
	directory := &fakeDirectory{
		findService: func(ctx context.Context, userID, projectKey string) (tenants.Service, error) {
			return supportService(), nil
		},
	}

	p := NewProcessor(nil, directory, &fakeAssistant{err: errors.New("upstream down")}, tickets, &fakeConversations{err: conversation.ErrNotFound}, &fakeNotifier{}, dispatcher, "")
	if err := p.HandleComment(context.Background(), "user-1", CommentEvent{TicketKey: "SUP-9", ProjectKey: "SUP", Body: "hello"}); err != nil {
		t.Fatalf("HandleComment: %v", err)
	}
	if len(tickets.comments) != 0 || len(dispatcher.calls) != 0 {
		t.Fatalf("downstream ran after assistant failure")
	}
}
