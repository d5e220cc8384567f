package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Resolver maps senders onto sessions and drives the identity state machine.
type Resolver struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewResolver creates a Resolver over store.
func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		validate: validator.New(),
		logger:   log.With(slog.String("service", "users")),
	}
}

// Resolve looks up the sender, creating a StateNew session on first contact.
// created is true only for the call that inserted the row.
func (r *Resolver) Resolve(ctx context.Context, senderAddress, displayName string) (Session, bool, error) {
	senderAddress = strings.TrimSpace(senderAddress)
	if senderAddress == "" {
		return Session{}, false, fmt.Errorf("sender address is required")
	}
	session, err := r.store.FindBySenderAddress(ctx, senderAddress)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, false, fmt.Errorf("find session: %w", err)
	}

	session, err = r.store.CreateFromSenderAddress(ctx, senderAddress, strings.TrimSpace(displayName))
	if errors.Is(err, ErrAlreadyExists) {
		session, err = r.store.FindBySenderAddress(ctx, senderAddress)
		if err != nil {
			return Session{}, false, fmt.Errorf("find session after conflict: %w", err)
		}
		return session, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("create session: %w", err)
	}
	r.logger.Info("session created", slog.String("user_id", session.ID))
	return session, true, nil
}

// MarkPrompted records that the identity prompt for a new session was queued.
// Sessions past StateNew are returned unchanged.
func (r *Resolver) MarkPrompted(ctx context.Context, session Session) (Session, error) {
	if session.State != StateNew {
		return session, nil
	}
	updated, err := r.store.UpdateState(ctx, session.ID, StateAwaitingIdentity)
	if err != nil {
		return session, fmt.Errorf("mark prompted: %w", err)
	}
	return updated, nil
}

// Advance applies one inbound message to the session state machine.
func (r *Resolver) Advance(ctx context.Context, session Session, text string) (Session, Transition, error) {
	switch session.State {
	case StateAuthenticated:
		return session, Passthrough, nil
	case StateNew:
		updated, err := r.MarkPrompted(ctx, session)
		if err != nil {
			return session, 0, err
		}
		return updated, Prompted, nil
	case StateAwaitingIdentity:
		email, ok := r.IdentityToken(text)
		if !ok {
			return session, IdentityRejected, nil
		}
		updated, err := r.store.Authenticate(ctx, session.ID, email)
		if err != nil {
			return session, 0, fmt.Errorf("authenticate: %w", err)
		}
		r.logger.Info("session authenticated", slog.String("user_id", updated.ID))
		return updated, IdentityAccepted, nil
	default:
		return session, 0, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, session.State)
	}
}

// IdentityToken returns the first email-shaped word of text, lowercased.
func (r *Resolver) IdentityToken(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		candidate := strings.ToLower(strings.Trim(field, ".,;:!?()<>\"'"))
		if candidate == "" {
			continue
		}
		if err := r.validate.Var(candidate, "required,email"); err == nil {
			return candidate, true
		}
	}
	return "", false
}
