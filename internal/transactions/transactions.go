// Package transactions stores the ledger entries created from chat intents.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/ledgerchat/internal/db"
	"github.com/memohai/ledgerchat/internal/intent"
)

var ErrNotFound = errors.New("transaction not found")

// Transaction is one recorded expense or income.
type Transaction struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	Category        string    `json:"category"`
	Kind            string    `json:"kind"`
	OccurredOn      time.Time `json:"occurred_on"`
	SourceMessageID string    `json:"source_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FromIntent converts a parsed intent into an unsaved transaction.
func FromIntent(userID, sourceMessageID string, in intent.TransactionIntent, today time.Time) (Transaction, error) {
	amount, err := in.Amount()
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		UserID:          userID,
		Description:     strings.TrimSpace(in.Descricao),
		Amount:          amount,
		Category:        strings.TrimSpace(in.Categoria),
		Kind:            in.Kind(),
		OccurredOn:      in.OccurredOn(today),
		SourceMessageID: sourceMessageID,
	}, nil
}

// Store persists transactions.
type Store interface {
	Create(ctx context.Context, tx Transaction) (Transaction, error)
	Get(ctx context.Context, userID, id string) (Transaction, error)
	// Delete removes the entry if it belongs to userID and returns it.
	Delete(ctx context.Context, userID, id string) (Transaction, error)
}

const columns = `id, user_id, description, amount, category, kind, occurred_on, source_message_id, created_at`

// PostgresStore keeps transactions in the transactions table.
type PostgresStore struct {
	conn db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) Create(ctx context.Context, tx Transaction) (Transaction, error) {
	userID, err := db.ParseUUID(tx.UserID)
	if err != nil {
		return Transaction{}, err
	}
	if strings.TrimSpace(tx.ID) == "" {
		tx.ID = uuid.NewString()
	}
	id, err := db.ParseUUID(tx.ID)
	if err != nil {
		return Transaction{}, err
	}
	var amount pgtype.Numeric
	if err := amount.Scan(strconv.FormatFloat(math.Round(tx.Amount*100)/100, 'f', 2, 64)); err != nil {
		return Transaction{}, fmt.Errorf("encode amount: %w", err)
	}
	row := s.conn.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, description, amount, category, kind, occurred_on, source_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+columns,
		id, userID, tx.Description, amount, tx.Category, tx.Kind,
		pgtype.Date{Time: tx.OccurredOn, Valid: true}, db.Text(tx.SourceMessageID),
	)
	return scanTransaction(row)
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Transaction, error) {
	pgUser, pgID, err := parseIDs(userID, id)
	if err != nil {
		return Transaction{}, err
	}
	row := s.conn.QueryRow(ctx,
		`SELECT `+columns+` FROM transactions WHERE id = $1 AND user_id = $2`,
		pgID, pgUser,
	)
	return scanTransaction(row)
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) (Transaction, error) {
	pgUser, pgID, err := parseIDs(userID, id)
	if err != nil {
		return Transaction{}, err
	}
	row := s.conn.QueryRow(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2 RETURNING `+columns,
		pgID, pgUser,
	)
	return scanTransaction(row)
}

func parseIDs(userID, id string) (pgtype.UUID, pgtype.UUID, error) {
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return pgtype.UUID{}, pgtype.UUID{}, err
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return pgtype.UUID{}, pgtype.UUID{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return pgUser, pgID, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		id, userID pgtype.UUID
		amount     pgtype.Numeric
		occurredOn pgtype.Date
		sourceID   pgtype.Text
		tx         Transaction
	)
	err := row.Scan(&id, &userID, &tx.Description, &amount, &tx.Category, &tx.Kind, &occurredOn, &sourceID, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	f, err := amount.Float64Value()
	if err != nil {
		return Transaction{}, fmt.Errorf("decode amount: %w", err)
	}
	tx.ID = db.UUIDToString(id)
	tx.UserID = db.UUIDToString(userID)
	tx.Amount = f.Float64
	tx.OccurredOn = occurredOn.Time
	tx.SourceMessageID = db.TextToString(sourceID)
	return tx, nil
}
