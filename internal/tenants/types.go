// Package tenants holds tenant-owned configuration: the services binding an
// assistant to an upstream project, and the per-tenant settings record.
package tenants

import "time"

// Service binds one AI assistant to one upstream Jira project for a tenant.
type Service struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	ProjectKey  string    `json:"project_key"`
	AssistantID string    `json:"assistant_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Config is the typed per-tenant settings record. Earlier revisions kept
// this as a free-form JSON blob parsed at every call site; the fields are
// now explicit columns.
type Config struct {
	UserID          string    `json:"user_id"`
	RequestedDomain string    `json:"requested_domain,omitempty"`
	AdminApproved   bool      `json:"admin_approved"`
	ProjectKey      string    `json:"project_key,omitempty"`
	DisabledTickets []string  `json:"disabled_tickets,omitempty"`
	DisableStates   []string  `json:"disable_states,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TicketDisabled reports whether automatic replies are switched off for the
// given ticket key.
func (c Config) TicketDisabled(ticketKey string) bool {
	for _, key := range c.DisabledTickets {
		if key == ticketKey {
			return true
		}
	}
	return false
}
