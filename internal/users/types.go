package users

import (
	"context"
	"errors"
	"time"
)

// State is the identity state of a chat sender.
type State string

const (
	StateNew              State = "new"
	StateAwaitingIdentity State = "awaiting_identity"
	StateAuthenticated    State = "authenticated"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateAwaitingIdentity, StateAuthenticated:
		return true
	}
	return false
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
	// ErrInvalidTransition is returned when a state change would move a
	// session backwards.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Session is the per-sender user record the pipeline resolves on every message.
type Session struct {
	ID            string    `json:"id"`
	SenderAddress string    `json:"sender_address"`
	DisplayName   string    `json:"display_name,omitempty"`
	State         State     `json:"state"`
	Email         string    `json:"email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Authenticated reports whether the session may use the transaction path.
func (s Session) Authenticated() bool { return s.State == StateAuthenticated }

// Store is the user persistence surface the resolver needs.
type Store interface {
	FindBySenderAddress(ctx context.Context, senderAddress string) (Session, error)
	// CreateFromSenderAddress inserts a session in StateNew. It returns
	// ErrAlreadyExists when another writer created the sender first.
	CreateFromSenderAddress(ctx context.Context, senderAddress, displayName string) (Session, error)
	UpdateState(ctx context.Context, id string, state State) (Session, error)
	// Authenticate stores email and moves an awaiting_identity session to
	// authenticated in one write. Other states return ErrInvalidTransition.
	Authenticate(ctx context.Context, id, email string) (Session, error)
}

// Transition describes what Advance did with a message.
type Transition int

const (
	// Prompted means a new session moved to awaiting identity after its
	// prompt was queued.
	Prompted Transition = iota + 1
	IdentityAccepted
	IdentityRejected
	// Passthrough means the session is authenticated and the content should
	// continue to intent dispatch.
	Passthrough
)

func (t Transition) String() string {
	switch t {
	case Prompted:
		return "prompted"
	case IdentityAccepted:
		return "identity_accepted"
	case IdentityRejected:
		return "identity_rejected"
	case Passthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}
