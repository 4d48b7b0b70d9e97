// Package handlers exposes the webhook surface both platforms push into.
// Every webhook POST is acknowledged with 200 {"code":"ok"} no matter how
// routing went; vendors retry aggressively on anything else and the bridge
// has no replay protection.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/temaline/chatbridge/internal/edna"
)

type ednaMessageRouter interface {
	Route(ctx context.Context, msg edna.IncomingMessage) error
}

type ednaStatusRouter interface {
	Route(ctx context.Context, status edna.StatusUpdate) error
}

// EdnaWebhookHandler receives edna's in-message and cascade status webhooks
// on a single endpoint and dispatches by payload shape.
type EdnaWebhookHandler struct {
	logger   *slog.Logger
	messages ednaMessageRouter
	statuses ednaStatusRouter
	token    string
}

// NewEdnaWebhookHandler creates the handler. token is optional; when set,
// requests must carry it in X-Auth-Token.
func NewEdnaWebhookHandler(log *slog.Logger, messages ednaMessageRouter, statuses ednaStatusRouter, token string) *EdnaWebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EdnaWebhookHandler{
		logger:   log.With(slog.String("handler", "edna_webhook")),
		messages: messages,
		statuses: statuses,
		token:    token,
	}
}

func (h *EdnaWebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/edna", h.Validate)
	e.HEAD("/webhooks/edna", h.Validate)
	e.POST("/webhooks/edna", h.Receive)
}

// Validate answers edna's callback-URL verification probe.
func (h *EdnaWebhookHandler) Validate(c echo.Context) error {
	return ack(c)
}

// Receive dispatches a webhook body to the message or status router. The
// two payloads share an endpoint; a status update is recognized by its
// requestId+status pair, a message by its messageContent block.
func (h *EdnaWebhookHandler) Receive(c echo.Context) error {
	if h.token != "" && c.Request().Header.Get("X-Auth-Token") != h.token {
		return c.JSON(http.StatusUnauthorized, map[string]string{"code": "unauthorized"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", slog.Any("error", err))
		return ack(c)
	}

	var probe struct {
		RequestID      string          `json:"requestId"`
		Status         string          `json:"status"`
		MessageContent json.RawMessage `json:"messageContent"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		h.logger.Warn("unparseable edna webhook", slog.Any("error", err))
		return ack(c)
	}

	ctx := c.Request().Context()
	switch {
	case probe.RequestID != "" && probe.Status != "":
		var status edna.StatusUpdate
		if err := json.Unmarshal(body, &status); err != nil {
			h.logger.Warn("malformed status update", slog.Any("error", err))
			return ack(c)
		}
		if err := h.statuses.Route(ctx, status); err != nil {
			h.logger.Error("status routing failed",
				slog.String("request_id", status.RequestID),
				slog.Any("error", err))
		}
	case len(probe.MessageContent) > 0:
		var msg edna.IncomingMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			h.logger.Warn("malformed incoming message", slog.Any("error", err))
			return ack(c)
		}
		if err := h.messages.Route(ctx, msg); err != nil {
			h.logger.Error("message routing failed",
				slog.Int64("message_id", msg.ID),
				slog.Any("error", err))
		}
	default:
		h.logger.Debug("edna webhook with unrecognized shape, acking")
	}
	return ack(c)
}

func ack(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"code": "ok"})
}
