package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// QueueDepth reports how many batches wait for a dispatch worker.
type QueueDepth interface {
	Depth() int
}

type PingHandler struct {
	queue  QueueDepth
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger, queue ...QueueDepth) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &PingHandler{logger: log.With(slog.String("handler", "ping"))}
	if len(queue) > 0 {
		h.queue = queue[0]
	}
	return h
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	resp := map[string]any{"status": "ok"}
	if h.queue != nil {
		resp["queued_batches"] = h.queue.Depth()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
