package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/memohai/ledgerchat/internal/content"
	"github.com/memohai/ledgerchat/internal/intent"
	"github.com/memohai/ledgerchat/internal/latency"
	"github.com/memohai/ledgerchat/internal/media"
	"github.com/memohai/ledgerchat/internal/reply"
	"github.com/memohai/ledgerchat/internal/transactions"
	"github.com/memohai/ledgerchat/internal/users"
	"github.com/memohai/ledgerchat/internal/webhook"
)

const identityKeyPrefix = "identity:"

// RateLimiter is the per-sender throttle.
type RateLimiter interface {
	Allow(key string, maxCount int, window time.Duration) bool
	AllowDefault(key string) bool
}

// SessionResolver resolves senders and drives the identity state machine.
type SessionResolver interface {
	Resolve(ctx context.Context, senderAddress, displayName string) (users.Session, bool, error)
	MarkPrompted(ctx context.Context, session users.Session) (users.Session, error)
	Advance(ctx context.Context, session users.Session, text string) (users.Session, users.Transition, error)
}

// LatencyRecorder records per-message telemetry.
type LatencyRecorder interface {
	Seen(ctx context.Context, externalID string) bool
	Open(ctx context.Context, msg webhook.InboundMessage) latency.Handle
	MarkQueued(ctx context.Context, h *latency.Handle, userID string)
	MarkDelivered(ctx context.Context, h *latency.Handle, responseMessageID string)
}

// MediaFetcher downloads an attachment by provider media id.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaID string, kind webhook.Kind) (media.Asset, error)
}

// Sender delivers a composed reply and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, out reply.Outbound) (string, error)
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Limiter      RateLimiter
	Sessions     SessionResolver
	Latency      LatencyRecorder
	Media        MediaFetcher
	Intent       intent.Client
	Transcriber  intent.Transcriber
	Transactions transactions.Store
	Sender       Sender
	Composer     *reply.Composer
}

// Options tune timeouts and the identity retry throttle.
type Options struct {
	IdentityMaxAttempts int
	IdentityWindow      time.Duration
	IntentTimeout       time.Duration
	MediaTimeout        time.Duration
	SendTimeout         time.Duration
	Now                 func() time.Time
}

// Orchestrator runs each inbound message through the pipeline.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func NewOrchestrator(log *slog.Logger, deps Deps, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if deps.Composer == nil {
		deps.Composer = reply.New(log)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IntentTimeout <= 0 {
		opts.IntentTimeout = 30 * time.Second
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = 30 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: log.With(slog.String("service", "dispatch")),
	}
}

// ProcessBatch handles messages sequentially and in order. Once ctx is
// cancelled no further message is started; a started message runs to
// completion.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch []webhook.InboundMessage) {
	for i, msg := range batch {
		if ctx.Err() != nil {
			o.logger.Warn("batch interrupted", slog.Int("skipped", len(batch)-i))
			return
		}
		o.processMessage(context.WithoutCancel(ctx), msg)
	}
}

// message carries the per-message state through the pipeline steps.
type message struct {
	in      webhook.InboundMessage
	handle  latency.Handle
	session users.Session
	logger  *slog.Logger
}

func (o *Orchestrator) processMessage(ctx context.Context, in webhook.InboundMessage) {
	m := &message{
		in: in,
		logger: o.logger.With(
			slog.String("external_message_id", in.ExternalID),
			slog.String("kind", in.Kind.String()),
		),
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("message processing panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if o.deps.Latency.Seen(ctx, in.ExternalID) {
		m.logger.Debug("skipping redelivered message")
		return
	}
	m.handle = o.deps.Latency.Open(ctx, in)

	if !o.deps.Limiter.AllowDefault(in.SenderAddress) {
		m.logger.Info("sender rate limited")
		return
	}

	session, created, err := o.deps.Sessions.Resolve(ctx, in.SenderAddress, in.SenderName)
	if err != nil {
		m.logger.Error("resolve session failed", slog.Any("error", err))
		o.fallback(ctx, m)
		return
	}
	m.session = session
	m.logger = m.logger.With(slog.String("user_id", session.ID))

	if created || session.State == users.StateNew {
		o.promptIdentity(ctx, m)
		return
	}

	normalized := content.Extract(in)
	if normalized.Empty() {
		m.logger.Debug("no actionable content")
		return
	}

	var out reply.Outbound
	switch session.State {
	case users.StateAwaitingIdentity:
		out, err = o.identify(ctx, m, normalized)
	case users.StateAuthenticated:
		out, err = o.route(ctx, m, normalized)
	default:
		err = fmt.Errorf("%w: %q", users.ErrInvalidTransition, session.State)
	}
	if err != nil {
		m.logger.Error("message pipeline failed", slog.Any("error", err))
		o.fallback(ctx, m)
		return
	}
	if _, err := o.send(ctx, m, out); err != nil {
		m.logger.Error("reply not delivered", slog.Any("error", err))
	}
}

func (o *Orchestrator) promptIdentity(ctx context.Context, m *message) {
	out := o.deps.Composer.IdentityPrompt(m.in.SenderAddress, m.session.DisplayName)
	if _, err := o.send(ctx, m, out); err != nil {
		m.logger.Error("identity prompt not delivered", slog.Any("error", err))
		return
	}
	if _, err := o.deps.Sessions.MarkPrompted(ctx, m.session); err != nil {
		m.logger.Error("mark prompted failed", slog.Any("error", err))
	}
}

// identify handles a message from a session waiting for its email. Attempts
// are throttled in their own limiter namespace.
func (o *Orchestrator) identify(ctx context.Context, m *message, n content.Normalized) (reply.Outbound, error) {
	to := m.in.SenderAddress
	if o.opts.IdentityMaxAttempts > 0 && o.opts.IdentityWindow > 0 &&
		!o.deps.Limiter.Allow(identityKeyPrefix+to, o.opts.IdentityMaxAttempts, o.opts.IdentityWindow) {
		m.logger.Info("identity attempts throttled")
		return o.deps.Composer.IdentityThrottled(to), nil
	}
	session, transition, err := o.deps.Sessions.Advance(ctx, m.session, n.Text)
	if err != nil {
		return reply.Outbound{}, err
	}
	m.session = session
	switch transition {
	case users.IdentityAccepted:
		return o.deps.Composer.Welcome(to, session.DisplayName), nil
	case users.Passthrough:
		return o.route(ctx, m, n)
	default:
		return o.deps.Composer.IdentityRetry(to), nil
	}
}

// route handles content from an authenticated session.
func (o *Orchestrator) route(ctx context.Context, m *message, n content.Normalized) (reply.Outbound, error) {
	if action, txID, ok := reply.ParseActionID(n.ReplyID); ok {
		return o.handleAction(ctx, m, action, txID)
	}
	switch {
	case n.RequiresMedia:
		text, err := o.transcribe(ctx, m, n)
		if err != nil {
			return reply.Outbound{}, err
		}
		return o.dispatchIntent(ctx, m, text)
	case n.MediaRef != "":
		o.persistAttachment(ctx, m, n)
		return o.dispatchIntent(ctx, m, n.Text)
	default:
		return o.dispatchIntent(ctx, m, n.Text)
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, m *message, n content.Normalized) (string, error) {
	if o.deps.Media == nil || o.deps.Transcriber == nil {
		return "", errors.New("media pipeline not configured")
	}
	mctx, cancel := context.WithTimeout(ctx, o.opts.MediaTimeout)
	defer cancel()
	asset, err := o.deps.Media.Fetch(mctx, n.MediaRef, n.MediaKind)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	tctx, tcancel := context.WithTimeout(ctx, o.opts.IntentTimeout)
	defer tcancel()
	text, err := o.deps.Transcriber.Transcribe(tctx, asset.LocalPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	m.logger.Debug("audio transcribed", slog.Int64("size_bytes", asset.SizeBytes))
	return text, nil
}

// persistAttachment stores a captioned image or video. Failure only loses the
// attachment; the caption is still dispatched.
func (o *Orchestrator) persistAttachment(ctx context.Context, m *message, n content.Normalized) {
	if o.deps.Media == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, o.opts.MediaTimeout)
	defer cancel()
	asset, err := o.deps.Media.Fetch(mctx, n.MediaRef, n.MediaKind)
	if err != nil {
		m.logger.Warn("attachment download failed", slog.Any("error", err))
		return
	}
	m.logger.Info("attachment stored", slog.String("path", asset.LocalPath), slog.String("mime_type", asset.MimeType))
}

func (o *Orchestrator) dispatchIntent(ctx context.Context, m *message, text string) (reply.Outbound, error) {
	to := m.in.SenderAddress
	ictx, cancel := context.WithTimeout(ctx, o.opts.IntentTimeout)
	defer cancel()

	parsed, err := o.deps.Intent.ParseIntent(ictx, text)
	if err != nil {
		return reply.Outbound{}, fmt.Errorf("parse intent: %w", err)
	}
	if parsed == nil {
		body, err := o.deps.Intent.GenerateReplyText(ictx, "conversation", map[string]string{
			"mensagem": strings.TrimSpace(text),
			"nome":     m.session.DisplayName,
		})
		if err != nil {
			return reply.Outbound{}, fmt.Errorf("generate reply: %w", err)
		}
		return o.deps.Composer.Plain(to, body), nil
	}

	today := o.opts.Now()
	tx, err := transactions.FromIntent(m.session.ID, m.in.ExternalID, *parsed, today)
	if err != nil {
		return reply.Outbound{}, fmt.Errorf("build transaction: %w", err)
	}
	saved, err := o.deps.Transactions.Create(ctx, tx)
	if err != nil {
		return reply.Outbound{}, fmt.Errorf("save transaction: %w", err)
	}
	m.logger.Info("transaction recorded", slog.String("transaction_id", saved.ID), slog.String("kind", saved.Kind))
	return o.deps.Composer.TransactionConfirmation(to, saved.ID, *parsed, m.session.DisplayName, today), nil
}

func (o *Orchestrator) handleAction(ctx context.Context, m *message, action, txID string) (reply.Outbound, error) {
	to := m.in.SenderAddress
	deleted, err := o.deps.Transactions.Delete(ctx, m.session.ID, txID)
	if errors.Is(err, transactions.ErrNotFound) {
		return o.deps.Composer.TransactionNotFound(to), nil
	}
	if err != nil {
		return reply.Outbound{}, fmt.Errorf("%s transaction: %w", action, err)
	}
	m.logger.Info("transaction removed", slog.String("transaction_id", deleted.ID), slog.String("action", action))
	if action == reply.ActionEdit {
		return o.deps.Composer.EditPrompt(to), nil
	}
	return o.deps.Composer.DeletionConfirmation(to, reply.Deleted{
		Description: deleted.Description,
		Amount:      deleted.Amount,
		Category:    deleted.Category,
		OccurredOn:  deleted.OccurredOn,
	}), nil
}

func (o *Orchestrator) fallback(ctx context.Context, m *message) {
	if _, err := o.send(ctx, m, o.deps.Composer.GenericFallback(m.in.SenderAddress)); err != nil {
		m.logger.Error("fallback reply not delivered", slog.Any("error", err))
	}
}

// send marks the record queued, delivers out with at most one immediate
// retry and marks it delivered on success.
func (o *Orchestrator) send(ctx context.Context, m *message, out reply.Outbound) (string, error) {
	o.deps.Latency.MarkQueued(ctx, &m.handle, m.session.ID)

	var (
		id  string
		err error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, o.opts.SendTimeout)
		id, err = o.deps.Sender.Send(sctx, out)
		cancel()
		if err == nil {
			break
		}
		m.logger.Warn("send failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if err != nil {
		return "", err
	}
	o.deps.Latency.MarkDelivered(ctx, &m.handle, id)
	return id, nil
}
