package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/ledgerchat/internal/intent"
	"github.com/memohai/ledgerchat/internal/latency"
	"github.com/memohai/ledgerchat/internal/media"
	"github.com/memohai/ledgerchat/internal/ratelimit"
	"github.com/memohai/ledgerchat/internal/reply"
	"github.com/memohai/ledgerchat/internal/transactions"
	"github.com/memohai/ledgerchat/internal/users"
	"github.com/memohai/ledgerchat/internal/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type userStore struct {
	mu       sync.Mutex
	sessions map[string]users.Session
}

func (s *userStore) FindBySenderAddress(_ context.Context, sender string) (users.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return users.Session{}, users.ErrNotFound
	}
	return sess, nil
}

func (s *userStore) CreateFromSenderAddress(_ context.Context, sender, name string) (users.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sender]; ok {
		return users.Session{}, users.ErrAlreadyExists
	}
	sess := users.Session{ID: uuid.NewString(), SenderAddress: sender, DisplayName: name, State: users.StateNew}
	s.sessions[sender] = sess
	return sess, nil
}

func (s *userStore) mutate(id string, fn func(*users.Session) error) (users.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.ID != id {
			continue
		}
		if err := fn(&sess); err != nil {
			return users.Session{}, err
		}
		s.sessions[k] = sess
		return sess, nil
	}
	return users.Session{}, users.ErrNotFound
}

func (s *userStore) UpdateState(_ context.Context, id string, state users.State) (users.Session, error) {
	return s.mutate(id, func(sess *users.Session) error {
		if sess.State == users.StateAuthenticated && state != users.StateAuthenticated {
			return users.ErrInvalidTransition
		}
		sess.State = state
		return nil
	})
}

func (s *userStore) Authenticate(_ context.Context, id, email string) (users.Session, error) {
	return s.mutate(id, func(sess *users.Session) error {
		if sess.State != users.StateAwaitingIdentity {
			return users.ErrInvalidTransition
		}
		sess.Email = email
		sess.State = users.StateAuthenticated
		return nil
	})
}

func (s *userStore) state(sender string) users.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sender].State
}

type latencyStore struct {
	mu      sync.Mutex
	records map[string]latency.Record
	order   []string
}

func (s *latencyStore) Create(_ context.Context, rec latency.Record) (latency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec, nil
}

func (s *latencyStore) MarkQueued(_ context.Context, id, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	rec.ResponseQueuedAt = &at
	if userID != "" {
		rec.UserID = userID
	}
	s.records[id] = rec
	return nil
}

func (s *latencyStore) MarkDelivered(_ context.Context, id, msgID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	rec.ResponseMessageID = msgID
	rec.DeliveredAt = &at
	s.records[id] = rec
	return nil
}

func (s *latencyStore) Get(_ context.Context, id string) (latency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return latency.Record{}, latency.ErrNotFound
	}
	return rec, nil
}

func (s *latencyStore) ExistsByExternalID(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ExternalMessageID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *latencyStore) byExternalID(externalID string) (latency.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ExternalMessageID == externalID {
			return rec, true
		}
	}
	return latency.Record{}, false
}

type fakeIntent struct {
	mu      sync.Mutex
	parse   func(text string) (*intent.TransactionIntent, error)
	hangOn  string
	replies []string
	texts   []string
}

// ParseIntent blocks until ctx is done when text equals hangOn.
func (f *fakeIntent) ParseIntent(ctx context.Context, text string) (*intent.TransactionIntent, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	parse, hangOn := f.parse, f.hangOn
	f.mu.Unlock()
	if hangOn != "" && text == hangOn {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if parse == nil {
		return nil, nil
	}
	return parse(text)
}

func (f *fakeIntent) GenerateReplyText(_ context.Context, key string, vars map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, key)
	return "resposta: " + vars["mensagem"], nil
}

func (f *fakeIntent) parsedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeMedia struct {
	mu    sync.Mutex
	err   error
	hang  bool
	calls []string
}

func (f *fakeMedia) Fetch(ctx context.Context, id string, kind webhook.Kind) (media.Asset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return media.Asset{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return media.Asset{}, f.err
	}
	return media.Asset{ExternalID: id, LocalPath: "/tmp/" + id, Kind: kind, MimeType: "audio/ogg"}, nil
}

type txStore struct {
	mu  sync.Mutex
	txs map[string]transactions.Transaction
	err error
}

func (s *txStore) Create(_ context.Context, tx transactions.Transaction) (transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return transactions.Transaction{}, s.err
	}
	tx.ID = uuid.NewString()
	s.txs[tx.ID] = tx
	return tx, nil
}

func (s *txStore) Get(_ context.Context, userID, id string) (transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return transactions.Transaction{}, transactions.ErrNotFound
	}
	return tx, nil
}

func (s *txStore) Delete(ctx context.Context, userID, id string) (transactions.Transaction, error) {
	tx, err := s.Get(ctx, userID, id)
	if err != nil {
		return tx, err
	}
	s.mu.Lock()
	delete(s.txs, id)
	s.mu.Unlock()
	return tx, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []reply.Outbound
	attempts int
	failures int
	delay    time.Duration
}

func (s *fakeSender) Send(ctx context.Context, out reply.Outbound) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return "", errors.New("transport down")
	}
	s.sent = append(s.sent, out)
	return fmt.Sprintf("wamid.out%d", len(s.sent)), nil
}

func (s *fakeSender) replies() []reply.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reply.Outbound(nil), s.sent...)
}

type harness struct {
	users   *userStore
	latency *latencyStore
	intent  *fakeIntent
	media   *fakeMedia
	txs     *txStore
	sender  *fakeSender
	limiter *ratelimit.Limiter
	orch    *Orchestrator
}

type harnessOption func(*harness, *Deps, *Options)

func newHarness(opts ...harnessOption) *harness {
	log := discardLogger()
	h := &harness{
		users:   &userStore{sessions: map[string]users.Session{}},
		latency: &latencyStore{records: map[string]latency.Record{}},
		intent:  &fakeIntent{},
		media:   &fakeMedia{},
		txs:     &txStore{txs: map[string]transactions.Transaction{}},
		sender:  &fakeSender{},
		limiter: ratelimit.NewLimiter(log, 100, time.Minute),
	}
	deps := Deps{
		Limiter:      h.limiter,
		Sessions:     users.NewResolver(log, h.users),
		Latency:      latency.NewRecorder(log, h.latency),
		Media:        h.media,
		Intent:       h.intent,
		Transcriber:  fakeTranscriber{text: "mercado 40 reais"},
		Transactions: h.txs,
		Sender:       h.sender,
		Composer:     reply.New(log),
	}
	options := Options{
		IdentityMaxAttempts: 3,
		IdentityWindow:      time.Minute,
		IntentTimeout:       time.Second,
		MediaTimeout:        time.Second,
		SendTimeout:         time.Second,
		Now:                 func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(h, &deps, &options)
	}
	h.orch = NewOrchestrator(log, deps, options)
	return h
}

func (h *harness) seed(sender string, state users.State) users.Session {
	sess := users.Session{ID: uuid.NewString(), SenderAddress: sender, DisplayName: "Ana", State: state}
	h.users.mu.Lock()
	h.users.sessions[sender] = sess
	h.users.mu.Unlock()
	return sess
}

func textMessage(id, sender, text string) webhook.InboundMessage {
	return webhook.InboundMessage{ExternalID: id, SenderAddress: sender, Kind: webhook.KindText, RawText: text}
}
