package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/whatsapp"
)

// WhatsAppHandler receives the channel's webhook callbacks: the one-time
// subscription verification handshake and inbound message notifications.
type WhatsAppHandler struct {
	processor   *whatsapp.Processor
	verifyToken string
	logger      *slog.Logger
}

func NewWhatsAppHandler(log *slog.Logger, processor *whatsapp.Processor, verifyToken string) *WhatsAppHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WhatsAppHandler{
		processor:   processor,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "whatsapp")),
	}
}

func (h *WhatsAppHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/whatsapp/:user_id", h.Verify)
	e.POST("/webhooks/whatsapp/:user_id", h.Receive)
}

// Verify answers the subscription handshake with the challenge value.
func (h *WhatsAppHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// inboundPayload mirrors the channel's notification envelope, reduced to
// the fields the dispatch path consumes.
type inboundPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive struct {
						ListReply struct {
							ID string `json:"id"`
						} `json:"list_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive processes inbound message notifications. The channel retries on
// non-2xx, so per-message processing failures are logged and acknowledged;
// redeliveries are absorbed by the conversation dedup window.
func (h *WhatsAppHandler) Receive(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	var payload inboundPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	ctx := c.Request().Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			handle := ""
			if len(change.Value.Contacts) > 0 {
				handle = change.Value.Contacts[0].WaID
			}
			for _, msg := range change.Value.Messages {
				inbound := whatsapp.InboundMessage{
					Phone:     msg.From,
					Handle:    handle,
					MessageID: msg.ID,
					Text:      msg.Text.Body,
					Selection: msg.Interactive.ListReply.ID,
				}
				if err := h.processor.Process(ctx, userID, inbound); err != nil {
					h.logger.Error("inbound message processing failed",
						slog.String("message_id", msg.ID),
						slog.Any("error", err))
				}
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
