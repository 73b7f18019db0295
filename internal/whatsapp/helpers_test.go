package whatsapp

import (
	"context"
	"sync"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

// memConversationStore is an in-memory conversation.Store with the same
// single-step atomicity the Postgres store provides.
type memConversationStore struct {
	mu         sync.Mutex
	records    map[string]*conversation.Record
	failUpsert error
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{records: map[string]*conversation.Record{}}
}

func (s *memConversationStore) Get(ctx context.Context, phone string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return conversation.Record{}, conversation.ErrNotFound
	}
	return *record, nil
}

func (s *memConversationStore) Upsert(ctx context.Context, phone, channelHandle, userID string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return conversation.Record{}, s.failUpsert
	}
	record, ok := s.records[phone]
	if !ok {
		record = &conversation.Record{Phone: phone, UserID: userID, State: conversation.StatePreSelection}
		s.records[phone] = record
	}
	record.ChannelHandle = channelHandle
	return *record, nil
}

func (s *memConversationStore) Activate(ctx context.Context, phone, ticketKey, serviceID string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return conversation.Record{}, conversation.ErrNotFound
	}
	record.State = conversation.StateActive
	record.TicketKey = ticketKey
	record.ServiceID = serviceID
	return *record, nil
}

func (s *memConversationStore) Reset(ctx context.Context, phone string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return conversation.Record{}, conversation.ErrNotFound
	}
	record.State = conversation.StatePreSelection
	record.TicketKey = ""
	record.ServiceID = ""
	record.ThreadID = ""
	return *record, nil
}

func (s *memConversationStore) SetThread(ctx context.Context, phone, threadID string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return conversation.Record{}, conversation.ErrNotFound
	}
	record.ThreadID = threadID
	return *record, nil
}

func (s *memConversationStore) FindByTicketKey(ctx context.Context, ticketKey string) (conversation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.State == conversation.StateActive && record.TicketKey == ticketKey {
			return *record, nil
		}
	}
	return conversation.Record{}, conversation.ErrNotFound
}

func (s *memConversationStore) MarkProcessed(ctx context.Context, phone, msgID string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return false, conversation.ErrNotFound
	}
	for _, id := range record.RecentMessageIDs {
		if id == msgID {
			return false, nil
		}
	}
	record.RecentMessageIDs = conversation.PushBounded(record.RecentMessageIDs, msgID, limit)
	return true, nil
}

type fakeDirectory struct {
	services map[string]tenants.Service
	byUser   map[string][]tenants.Service
}

func (f *fakeDirectory) GetService(ctx context.Context, serviceID string) (tenants.Service, error) {
	svc, ok := f.services[serviceID]
	if !ok {
		return tenants.Service{}, tenants.ErrServiceNotFound
	}
	return svc, nil
}

func (f *fakeDirectory) ListServices(ctx context.Context, userID string) ([]tenants.Service, error) {
	return f.byUser[userID], nil
}

type fakeAssistant struct {
	threads  int
	asks     []string
	response assistant.Response
	askErr   error
}

func (f *fakeAssistant) StartThread(ctx context.Context) (string, error) {
	f.threads++
	return "thread-1", nil
}

func (f *fakeAssistant) Ask(ctx context.Context, threadID, assistantID, message string) (assistant.Response, error) {
	if f.askErr != nil {
		return assistant.Response{}, f.askErr
	}
	f.asks = append(f.asks, assistantID+":"+message)
	return f.response, nil
}

type fakeJira struct {
	created  []string
	comments []string
	issueKey string
}

func (f *fakeJira) CreateIssue(ctx context.Context, projectKey, summary, description string) (string, error) {
	f.created = append(f.created, projectKey)
	if f.issueKey == "" {
		return "SUP-1", nil
	}
	return f.issueKey, nil
}

func (f *fakeJira) AddComment(ctx context.Context, ticketKey, body string) error {
	f.comments = append(f.comments, ticketKey+":"+body)
	return nil
}

type fakeSender struct {
	texts []string
	menus int
}

func (f *fakeSender) SendText(ctx context.Context, phone, text string) error {
	f.texts = append(f.texts, phone+":"+text)
	return nil
}

func (f *fakeSender) SendMenu(ctx context.Context, phone string, options []MenuOption) error {
	f.menus++
	return nil
}

type fakeDispatcher struct {
	calls []dispatchCall
}

type dispatchCall struct {
	userID     string
	serviceID  string
	projectKey string
	aiResponse any
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]webhook.Outcome, error) {
	f.calls = append(f.calls, dispatchCall{userID: userID, serviceID: serviceID, projectKey: projectKey, aiResponse: aiResponse})
	return nil, nil
}
