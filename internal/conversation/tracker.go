package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Store persists conversation records. Upsert and MarkProcessed must be
// atomic at the storage layer: Upsert is a single insert-or-update keyed by
// the unique phone, and MarkProcessed a single conditional append that
// reports whether the id was new. The tracker adds no locking of its own.
type Store interface {
	Get(ctx context.Context, phone string) (Record, error)
	Upsert(ctx context.Context, phone, channelHandle, userID string) (Record, error)
	Activate(ctx context.Context, phone, ticketKey, serviceID string) (Record, error)
	Reset(ctx context.Context, phone string) (Record, error)
	SetThread(ctx context.Context, phone, threadID string) (Record, error)
	FindByTicketKey(ctx context.Context, ticketKey string) (Record, error)
	MarkProcessed(ctx context.Context, phone, msgID string, limit int) (bool, error)
}

// Tracker drives the conversation lifecycle for the WhatsApp channel.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

func NewTracker(log *slog.Logger, store Store) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// GetOrCreate upserts the record for phone. A new record starts in
// pre_selection owned by userID; an existing record only has its channel
// handle refreshed, since the channel may rotate it. Failure here aborts the
// caller's message processing: no routing decision is safe without a record.
func (t *Tracker) GetOrCreate(ctx context.Context, phone, channelHandle, userID string) (Record, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Record{}, err
	}
	record, err := t.store.Upsert(ctx, normalized, channelHandle, userID)
	if err != nil {
		return Record{}, fmt.Errorf("upsert conversation %s: %w", normalized, err)
	}
	return record, nil
}

// Activate binds the conversation to a tenant service and its ticket,
// last-write-wins. Re-activation from active legitimately redirects an
// ongoing conversation.
func (t *Tracker) Activate(ctx context.Context, phone, ticketKey, serviceID string) (Record, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(ticketKey) == "" || strings.TrimSpace(serviceID) == "" {
		return Record{}, fmt.Errorf("activate %s: ticket key and service id are required", normalized)
	}
	record, err := t.store.Activate(ctx, normalized, ticketKey, serviceID)
	if err != nil {
		return Record{}, fmt.Errorf("activate conversation %s: %w", normalized, err)
	}
	t.logger.Info("conversation activated",
		slog.String("phone", normalized),
		slog.String("ticket_key", ticketKey),
		slog.String("service_id", serviceID))
	return record, nil
}

// Reset returns the conversation to pre_selection, clearing the ticket,
// service, and assistant thread. Triggered by a user command, never
// autonomously.
func (t *Tracker) Reset(ctx context.Context, phone string) (Record, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Record{}, err
	}
	record, err := t.store.Reset(ctx, normalized)
	if err != nil {
		return Record{}, fmt.Errorf("reset conversation %s: %w", normalized, err)
	}
	t.logger.Info("conversation reset", slog.String("phone", normalized))
	return record, nil
}

// RecordThread attaches the generic assistant's session handle, used only
// while the conversation is in pre_selection.
func (t *Tracker) RecordThread(ctx context.Context, phone, threadID string) (Record, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return Record{}, err
	}
	record, err := t.store.SetThread(ctx, normalized, threadID)
	if err != nil {
		return Record{}, fmt.Errorf("record thread for %s: %w", normalized, err)
	}
	return record, nil
}

// FindByTicketKey reverse-looks-up the active conversation bound to a
// ticket, for routing ticket comments back to the phone.
func (t *Tracker) FindByTicketKey(ctx context.Context, ticketKey string) (Record, error) {
	return t.store.FindByTicketKey(ctx, ticketKey)
}

// IsProcessed reports whether msgID is inside the record's dedup window.
func (t *Tracker) IsProcessed(ctx context.Context, phone, msgID string) (bool, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return false, err
	}
	record, err := t.store.Get(ctx, normalized)
	if err != nil {
		return false, err
	}
	return record.Seen(msgID), nil
}

// MarkProcessed records msgID in the dedup window, evicting the oldest id
// beyond the window bound.
func (t *Tracker) MarkProcessed(ctx context.Context, phone, msgID string) error {
	_, err := t.CheckAndMark(ctx, phone, msgID)
	return err
}

// CheckAndMark atomically records msgID and reports whether it was new.
// A false result means a redelivery: the message must be dropped with no
// side effects. Check and mark are one store call so two concurrent
// redeliveries cannot both pass.
func (t *Tracker) CheckAndMark(ctx context.Context, phone, msgID string) (bool, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(msgID) == "" {
		return true, nil
	}
	fresh, err := t.store.MarkProcessed(ctx, normalized, msgID, DedupWindow)
	if err != nil {
		return false, fmt.Errorf("mark processed for %s: %w", normalized, err)
	}
	if !fresh {
		t.logger.Debug("duplicate message dropped",
			slog.String("phone", normalized),
			slog.String("message_id", msgID))
	}
	return fresh, nil
}
