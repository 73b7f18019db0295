package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/auth"
	"github.com/deskbridge/deskbridge/internal/webhook"
)

// WebhookHandler lets a tenant inspect which fanout rules would fire for a
// given scope.
type WebhookHandler struct {
	engine *webhook.Engine
	logger *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, engine *webhook.Engine) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		engine: engine,
		logger: log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/rules", h.ListRules)
}

// ListRules resolves the caller's rules for the scope given by the optional
// service_id and project_key query parameters.
func (h *WebhookHandler) ListRules(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	rules, err := h.engine.ResolveRules(c.Request().Context(),
		userID,
		c.QueryParam("service_id"),
		c.QueryParam("project_key"))
	if err != nil {
		h.logger.Error("resolve rules failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "resolve rules failed")
	}
	if rules == nil {
		rules = []webhook.Rule{}
	}
	return c.JSON(http.StatusOK, rules)
}
