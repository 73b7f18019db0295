package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/jira"
)

// JiraHandler receives comment webhooks from Jira and hands them to the
// comment processor.
type JiraHandler struct {
	processor *jira.Processor
	logger    *slog.Logger
}

func NewJiraHandler(log *slog.Logger, processor *jira.Processor) *JiraHandler {
	if log == nil {
		log = slog.Default()
	}
	return &JiraHandler{
		processor: processor,
		logger:    log.With(slog.String("handler", "jira")),
	}
}

func (h *JiraHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/jira/:user_id", h.Receive)
}

// jiraEventPayload mirrors the subset of the Jira webhook envelope the
// processor needs.
type jiraEventPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Comment      struct {
		Body   string `json:"body"`
		Author struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
			AccountID   string `json:"accountId"`
		} `json:"author"`
	} `json:"comment"`
	Issue struct {
		Key    string `json:"key"`
		Fields struct {
			Project struct {
				Key string `json:"key"`
			} `json:"project"`
		} `json:"fields"`
	} `json:"issue"`
}

// Receive accepts a Jira webhook delivery. Only comment_created events are
// acted on; everything else is acknowledged and dropped so Jira does not
// retry.
func (h *JiraHandler) Receive(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	var payload jiraEventPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if payload.WebhookEvent != "comment_created" {
		return c.NoContent(http.StatusOK)
	}

	event := jira.CommentEvent{
		TicketKey:  payload.Issue.Key,
		ProjectKey: payload.Issue.Fields.Project.Key,
		Body:       payload.Comment.Body,
		Author:     payload.Comment.Author.Name,
	}
	if event.Author == "" {
		event.Author = payload.Comment.Author.AccountID
	}
	if event.ProjectKey == "" {
		event.ProjectKey = projectKeyFromTicket(event.TicketKey)
	}

	if err := h.processor.HandleComment(c.Request().Context(), userID, event); err != nil {
		h.logger.Error("comment processing failed",
			slog.String("ticket_key", event.TicketKey),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "comment processing failed")
	}
	return c.NoContent(http.StatusOK)
}

// projectKeyFromTicket derives "SUP" from "SUP-123" when the payload omits
// the project block.
func projectKeyFromTicket(key string) string {
	if i := strings.LastIndex(key, "-"); i > 0 {
		return key[:i]
	}
	return ""
}
