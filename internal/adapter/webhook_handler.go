package adapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// WebhookHandler receives page platform webhook callbacks and feeds them into
// the adapter.
type WebhookHandler struct {
	logger  *slog.Logger
	adapter *Adapter
	bot     Bot
}

// NewWebhookHandler creates the public webhook handler for page callbacks.
func NewWebhookHandler(log *slog.Logger, a *Adapter, bot Bot) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "page_webhook")),
		adapter: a,
		bot:     bot,
	}
}

// Register registers webhook callback routes. Verification handshakes arrive
// as GETs, event deliveries as POSTs; both branch on the hub.mode query.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Handle)
	e.POST("/webhook", h.Handle)
}

// Handle processes one webhook request. Internal dispatch failures never
// produce a 5xx: the platform retries on non-2xx, and a malformed event must
// not wedge the subscription.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.adapter == nil || h.bot == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook dependencies not configured")
	}
	err := h.adapter.ProcessRequest(c.Request().Context(), c.Request(), c.Response(), h.bot)
	switch {
	case err == nil:
	case errors.Is(err, ErrSignatureMismatch):
		return echo.NewHTTPError(http.StatusForbidden, "invalid webhook signature")
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("webhook dispatch failed", slog.Any("error", err))
	}
	if c.Response().Committed {
		return nil
	}
	return c.NoContent(http.StatusOK)
}
