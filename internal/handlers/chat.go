package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

// ServiceDirectory resolves the service a chat widget is bound to.
type ServiceDirectory interface {
	GetService(ctx context.Context, serviceID string) (tenants.Service, error)
}

// ChatAssistant runs one widget turn.
type ChatAssistant interface {
	StartThread(ctx context.Context) (string, error)
	Ask(ctx context.Context, threadID, assistantID, message string) (assistant.Response, error)
}

// ChatDispatcher fans the response out to the tenant's webhooks.
type ChatDispatcher interface {
	Dispatch(ctx context.Context, userID, serviceID, projectKey string, aiResponse any, payload any) ([]webhook.Outcome, error)
}

// ChatHandler serves the embedded website widget. The route is public; the
// origin gate in front of the server decides who may call it.
type ChatHandler struct {
	directory  ServiceDirectory
	assistants ChatAssistant
	webhooks   ChatDispatcher
	logger     *slog.Logger
}

func NewChatHandler(log *slog.Logger, directory ServiceDirectory, assistants ChatAssistant, webhooks ChatDispatcher) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{
		directory:  directory,
		assistants: assistants,
		webhooks:   webhooks,
		logger:     log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/chat", h.Chat)
}

type chatRequest struct {
	ServiceID string `json:"service_id"`
	ThreadID  string `json:"thread_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
}

// Chat runs one turn against the service's assistant and returns the reply
// together with the thread id the widget should reuse on its next turn.
func (h *ChatHandler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.ServiceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "service_id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()

	svc, err := h.directory.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, tenants.ErrServiceNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "service not found")
		}
		h.logger.Error("service lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "service lookup failed")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID, err = h.assistants.StartThread(ctx)
		if err != nil {
			h.logger.Error("start thread failed", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadGateway, "assistant unavailable")
		}
	}

	resp, err := h.assistants.Ask(ctx, threadID, svc.AssistantID, req.Message)
	if err != nil {
		h.logger.Error("assistant run failed",
			slog.String("assistant_id", svc.AssistantID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "assistant unavailable")
	}

	payload := map[string]any{
		"event":       "chat.reply",
		"service_id":  svc.ID,
		"thread_id":   threadID,
		"message":     req.Message,
		"reply":       resp.Text,
		"ai_response": resp.Raw,
	}
	if _, err := h.webhooks.Dispatch(ctx, svc.UserID, svc.ID, svc.ProjectKey, resp.Raw, payload); err != nil {
		h.logger.Error("webhook fanout failed", slog.Any("error", err))
	}

	return c.JSON(http.StatusOK, chatResponse{ThreadID: threadID, Reply: resp.Text})
}
