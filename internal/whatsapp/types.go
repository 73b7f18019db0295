// Package whatsapp routes inbound WhatsApp messages through the
// conversation lifecycle: a generic assistant plus service menu before
// selection, the selected service's assistant afterwards.
package whatsapp

import "github.com/deskbridge/deskbridge/internal/tenants"

// InboundMessage is one message delivered by the channel. The channel may
// redeliver the same MessageID; processing must tolerate that.
type InboundMessage struct {
	Phone     string
	Handle    string
	MessageID string
	Text      string
	// Selection carries the id of an interactive list reply, when the user
	// picked a service from the menu.
	Selection string
}

// Menu commands recognised in any state.
const (
	CommandMenu  = "menu"
	CommandStart = "start"
)

// MenuOption is one selectable service in the outbound menu.
type MenuOption struct {
	ServiceID string
	Title     string
}

// MenuFromServices renders a tenant's services as menu options.
func MenuFromServices(services []tenants.Service) []MenuOption {
	options := make([]MenuOption, 0, len(services))
	for _, svc := range services {
		options = append(options, MenuOption{ServiceID: svc.ID, Title: svc.Name})
	}
	return options
}
