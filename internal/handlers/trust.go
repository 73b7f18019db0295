package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deskbridge/deskbridge/internal/auth"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/trust"
)

// DomainApprover persists a tenant's domain approval decision.
type DomainApprover interface {
	SetDomainApproval(ctx context.Context, userID, domain string, approved bool) (tenants.Config, error)
}

// TrustHandler exposes the admin surface of the origin gate: inspect the
// cache and approve or revoke a tenant's widget domain. All routes require a
// valid token.
type TrustHandler struct {
	cache    *trust.Cache
	approver DomainApprover
	logger   *slog.Logger
}

func NewTrustHandler(log *slog.Logger, cache *trust.Cache, approver DomainApprover) *TrustHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TrustHandler{
		cache:    cache,
		approver: approver,
		logger:   log.With(slog.String("handler", "trust")),
	}
}

func (h *TrustHandler) Register(e *echo.Echo) {
	g := e.Group("/trust")
	g.GET("/stats", h.GetStats)
	g.POST("/domains", h.ApproveDomain)
	g.DELETE("/domains", h.RevokeDomain)
}

func (h *TrustHandler) GetStats(c echo.Context) error {
	if _, err := auth.UserIDFromContext(c); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return c.JSON(http.StatusOK, h.cache.Stats())
}

type domainRequest struct {
	Domain string `json:"domain"`
}

// ApproveDomain records the approval and admits the domain's origin variants
// immediately, without waiting for the next cache refresh.
func (h *TrustHandler) ApproveDomain(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	var req domainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Domain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "domain is required")
	}

	cfg, err := h.approver.SetDomainApproval(c.Request().Context(), userID, req.Domain, true)
	if err != nil {
		h.logger.Error("approve domain failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "approve domain failed")
	}
	h.cache.AddDomain(req.Domain)

	return c.JSON(http.StatusOK, cfg)
}

// RevokeDomain clears the approval and evicts the domain from the cache.
func (h *TrustHandler) RevokeDomain(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	var req domainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Domain == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "domain is required")
	}

	cfg, err := h.approver.SetDomainApproval(c.Request().Context(), userID, req.Domain, false)
	if err != nil {
		h.logger.Error("revoke domain failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "revoke domain failed")
	}
	h.cache.RemoveDomain(req.Domain)

	return c.JSON(http.StatusOK, cfg)
}
