package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/temaline/chatbridge/internal/amocrm"
)

type amoMessageRouter interface {
	Route(ctx context.Context, payload amocrm.IncomingWebhook) error
}

// AmoWebhookHandler receives outgoing-message webhooks from the amoCRM chat
// channel. The scope path segment identifies the integration instance; it is
// logged but not verified beyond presence.
type AmoWebhookHandler struct {
	logger   *slog.Logger
	messages amoMessageRouter
}

func NewAmoWebhookHandler(log *slog.Logger, messages amoMessageRouter) *AmoWebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AmoWebhookHandler{
		logger:   log.With(slog.String("handler", "amocrm_webhook")),
		messages: messages,
	}
}

func (h *AmoWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/amocrm/:scope", h.Receive)
}

func (h *AmoWebhookHandler) Receive(c echo.Context) error {
	var payload amocrm.IncomingWebhook
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		h.logger.Warn("unparseable amoCRM webhook",
			slog.String("scope", c.Param("scope")),
			slog.Any("error", err))
		return ack(c)
	}

	if err := h.messages.Route(c.Request().Context(), payload); err != nil {
		h.logger.Error("message routing failed",
			slog.String("scope", c.Param("scope")),
			slog.String("message_id", payload.Message.ID),
			slog.Any("error", err))
	}
	return ack(c)
}
