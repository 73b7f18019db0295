// Package conversation tracks a WhatsApp conversation per phone number
// through its selection lifecycle and deduplicates redelivered messages.
package conversation

import (
	"errors"
	"strings"
	"time"
)

// Conversation states. A conversation starts in pre_selection, where a
// generic assistant answers and offers the tenant's services; selecting one
// moves it to active until an explicit reset.
const (
	StatePreSelection = "pre_selection"
	StateActive       = "active"
)

// DedupWindow bounds how many recent message ids a record remembers. The
// channel's redelivery window is short; a duplicate arriving more than 20
// messages later is an accepted rare miss, not data loss.
const DedupWindow = 20

// ErrNotFound indicates no conversation record for the key.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidPhone indicates the phone number carried no digits.
var ErrInvalidPhone = errors.New("invalid phone number")

// Record is the per-phone-number conversation state. Invariant: ServiceID
// and TicketKey are both set iff State is active; ThreadID is only used in
// pre_selection.
type Record struct {
	Phone            string    `json:"phone"`
	ChannelHandle    string    `json:"channel_handle"`
	UserID           string    `json:"user_id"`
	State            string    `json:"state"`
	ServiceID        string    `json:"service_id,omitempty"`
	TicketKey        string    `json:"ticket_key,omitempty"`
	ThreadID         string    `json:"thread_id,omitempty"`
	RecentMessageIDs []string  `json:"recent_message_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Active reports whether the record is bound to a service and ticket.
func (r Record) Active() bool {
	return r.State == StateActive
}

// Seen reports whether msgID is inside the record's dedup window.
func (r Record) Seen(msgID string) bool {
	for _, id := range r.RecentMessageIDs {
		if id == msgID {
			return true
		}
	}
	return false
}

// NormalizePhone reduces a phone number to digits with a leading +.
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return "", ErrInvalidPhone
	}
	return "+" + digits.String(), nil
}

// PushBounded prepends msgID to ids, keeping at most limit entries; the
// oldest entry is evicted first. Ids are ordered newest first.
func PushBounded(ids []string, msgID string, limit int) []string {
	out := make([]string, 0, limit)
	out = append(out, msgID)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		out = append(out, id)
	}
	return out
}
