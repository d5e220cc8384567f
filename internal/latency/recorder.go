package latency

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/ledgerchat/internal/webhook"
)

// Handle identifies an opened record. A zero Handle means the record could
// not be created; later marks on it are no-ops.
type Handle struct {
	ID                string
	ExternalMessageID string
	ReceivedAt        time.Time
	queuedAt          time.Time
}

// Valid reports whether the record was persisted.
func (h Handle) Valid() bool { return h.ID != "" }

// Recorder writes latency telemetry. Every method is best-effort: store
// failures are logged and never returned to the pipeline.
type Recorder struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRecorder(log *slog.Logger, store Store, opts ...Option) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		store:  store,
		now:    time.Now,
		logger: log.With(slog.String("service", "latency")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seen reports whether a record for externalID already exists. Lookup
// failures report false so the message is processed.
func (r *Recorder) Seen(ctx context.Context, externalID string) bool {
	if r.store == nil || strings.TrimSpace(externalID) == "" {
		return false
	}
	exists, err := r.store.ExistsByExternalID(ctx, externalID)
	if err != nil {
		r.logger.Warn("dedup lookup failed", slog.String("external_message_id", externalID), slog.Any("error", err))
		return false
	}
	return exists
}

// Open creates the record for msg. The provider timestamp is used as the
// receive time, clamped to the current clock reading.
func (r *Recorder) Open(ctx context.Context, msg webhook.InboundMessage) Handle {
	now := r.now()
	received := msg.ReceivedAt
	if received.IsZero() || received.After(now) {
		received = now
	}
	if r.store == nil {
		return Handle{}
	}
	rec, err := r.store.Create(ctx, Record{
		ID:                uuid.NewString(),
		SenderAddress:     msg.SenderAddress,
		ExternalMessageID: msg.ExternalID,
		ReceivedAt:        received,
	})
	if err != nil {
		r.logger.Warn("open latency record failed", slog.String("external_message_id", msg.ExternalID), slog.Any("error", err))
		return Handle{}
	}
	return Handle{ID: rec.ID, ExternalMessageID: msg.ExternalID, ReceivedAt: received}
}

// MarkQueued stamps the moment the reply was handed to the transport and
// attaches the resolved user.
func (r *Recorder) MarkQueued(ctx context.Context, h *Handle, userID string) {
	if h == nil || !h.Valid() {
		return
	}
	at := r.monotonic(h.ReceivedAt)
	if err := r.store.MarkQueued(ctx, h.ID, userID, at); err != nil {
		r.logger.Warn("mark queued failed", slog.String("record_id", h.ID), slog.Any("error", err))
		return
	}
	h.queuedAt = at
}

// MarkDelivered stores the provider's outbound id and logs an audit line.
func (r *Recorder) MarkDelivered(ctx context.Context, h *Handle, responseMessageID string) {
	if h == nil || !h.Valid() || strings.TrimSpace(responseMessageID) == "" {
		return
	}
	floor := h.ReceivedAt
	if h.queuedAt.After(floor) {
		floor = h.queuedAt
	}
	at := r.monotonic(floor)
	if err := r.store.MarkDelivered(ctx, h.ID, responseMessageID, at); err != nil {
		r.logger.Warn("mark delivered failed", slog.String("record_id", h.ID), slog.Any("error", err))
		return
	}

	rec, err := r.store.Get(ctx, h.ID)
	if err != nil {
		r.logger.Warn("audit lookup failed", slog.String("record_id", h.ID), slog.Any("error", err))
		return
	}
	r.logger.Info("reply delivered",
		slog.String("userId", rec.UserID),
		slog.String("externalMessageId", rec.ExternalMessageID),
		slog.String("responseMessageId", responseMessageID),
		slog.Duration("latency", at.Sub(rec.ReceivedAt)),
	)
}

func (r *Recorder) monotonic(floor time.Time) time.Time {
	now := r.now()
	if now.Before(floor) {
		return floor
	}
	return now
}
