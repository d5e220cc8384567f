package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/ledgerchat/internal/config"
	"github.com/memohai/ledgerchat/internal/dispatch"
	"github.com/memohai/ledgerchat/internal/webhook"
)

const webhookMaxBodyBytes int64 = 1 << 20

// BatchQueue accepts batches for asynchronous processing without blocking.
type BatchQueue interface {
	Enqueue(batch []webhook.InboundMessage) error
}

// WebhookHandler serves the messaging provider's webhook endpoint.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	queue       BatchQueue
	now         func() time.Time
	logger      *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, cfg config.WhatsAppConfig, queue BatchQueue) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		queue:       queue,
		now:         time.Now,
		logger:      log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c echo.Context) error {
	challenge, err := webhook.Verify(c.QueryParams(), h.verifyToken)
	if err != nil {
		h.logger.Warn("webhook verification rejected", slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive acknowledges a batch as soon as it is queued. Processing happens on
// the dispatch workers.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if h.queue == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook queue not configured")
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, webhookMaxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > webhookMaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", webhookMaxBodyBytes))
	}
	if err := webhook.VerifySignature(payload, c.Request().Header.Get(webhook.SignatureHeader), h.appSecret); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	batch := webhook.Classify(payload)
	messages := slices.Collect(batch.Messages(h.now()))
	if len(messages) > 0 {
		if err := h.queue.Enqueue(messages); err != nil {
			h.logger.Warn("webhook batch not queued",
				slog.String("shape", batch.Shape.String()),
				slog.Int("messages", len(messages)),
				slog.Any("error", err),
			)
			if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrPoolClosed) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "busy, retry later")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "enqueue failed")
		}
		h.logger.Debug("webhook batch queued", slog.String("shape", batch.Shape.String()), slog.Int("messages", len(messages)))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
