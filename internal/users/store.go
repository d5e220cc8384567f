package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/ledgerchat/internal/db"
)

const sessionColumns = `id, sender_address, display_name, state, email, created_at, updated_at`

// PostgresStore keeps sessions in the users table.
type PostgresStore struct {
	conn db.DBTX
}

// NewPostgresStore returns a Store backed by conn.
func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) FindBySenderAddress(ctx context.Context, senderAddress string) (Session, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM users WHERE sender_address = $1`,
		strings.TrimSpace(senderAddress),
	)
	return scanSession(row)
}

func (s *PostgresStore) CreateFromSenderAddress(ctx context.Context, senderAddress, displayName string) (Session, error) {
	senderAddress = strings.TrimSpace(senderAddress)
	if senderAddress == "" {
		return Session{}, fmt.Errorf("sender address is required")
	}
	row := s.conn.QueryRow(ctx,
		`INSERT INTO users (id, sender_address, display_name, state)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (sender_address) DO NOTHING
		 RETURNING `+sessionColumns,
		pgtype.UUID{Bytes: uuid.New(), Valid: true},
		senderAddress,
		db.Text(displayName),
		string(StateNew),
	)
	session, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrAlreadyExists
	}
	return session, err
}

// UpdateState never moves an authenticated row to another state.
func (s *PostgresStore) UpdateState(ctx context.Context, id string, state State) (Session, error) {
	if !state.Valid() {
		return Session{}, fmt.Errorf("invalid state %q", state)
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Session{}, err
	}
	row := s.conn.QueryRow(ctx,
		`UPDATE users SET state = $2, updated_at = now()
		 WHERE id = $1 AND (state <> 'authenticated' OR $2 = 'authenticated')
		 RETURNING `+sessionColumns,
		pgID, string(state),
	)
	session, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		if _, findErr := s.findByID(ctx, pgID); findErr == nil {
			return Session{}, ErrInvalidTransition
		}
	}
	return session, err
}

func (s *PostgresStore) Authenticate(ctx context.Context, id, email string) (Session, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Session{}, err
	}
	row := s.conn.QueryRow(ctx,
		`UPDATE users SET email = $2, state = 'authenticated', updated_at = now()
		 WHERE id = $1 AND state = 'awaiting_identity'
		 RETURNING `+sessionColumns,
		pgID, db.Text(email),
	)
	session, err := scanSession(row)
	if errors.Is(err, ErrNotFound) {
		if _, findErr := s.findByID(ctx, pgID); findErr == nil {
			return Session{}, ErrInvalidTransition
		}
	}
	return session, err
}

func (s *PostgresStore) findByID(ctx context.Context, id pgtype.UUID) (Session, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM users WHERE id = $1`, id)
	return scanSession(row)
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		id          pgtype.UUID
		sender      string
		displayName pgtype.Text
		state       string
		email       pgtype.Text
		createdAt   time.Time
		updatedAt   time.Time
	)
	if err := row.Scan(&id, &sender, &displayName, &state, &email, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return Session{
		ID:            db.UUIDToString(id),
		SenderAddress: sender,
		DisplayName:   db.TextToString(displayName),
		State:         State(state),
		Email:         db.TextToString(email),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
