package latency

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

// PostgresStore writes records to the message_latency table.
type PostgresStore struct {
	conn db.DBTX
}

func NewPostgresStore(conn db.DBTX) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	id, err := db.ParseUUID(rec.ID)
	if err != nil {
		return Record{}, err
	}
	userID, err := optionalUUID(rec.UserID)
	if err != nil {
		return Record{}, err
	}
	_, err = s.conn.Exec(ctx,
		`INSERT INTO message_latency (id, user_id, sender_address, external_message_id, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, userID, rec.SenderAddress, rec.ExternalMessageID, db.Timestamptz(rec.ReceivedAt),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert latency record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MarkQueued(ctx context.Context, id, userID string, at time.Time) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	pgUser, err := optionalUUID(userID)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx,
		`UPDATE message_latency
		 SET response_queued_at = $2, user_id = COALESCE($3, user_id)
		 WHERE id = $1`,
		pgID, db.Timestamptz(at), pgUser,
	)
	if err != nil {
		return fmt.Errorf("mark queued: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id, responseMessageID string, at time.Time) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx,
		`UPDATE message_latency SET response_message_id = $2, delivered_at = $3 WHERE id = $1`,
		pgID, db.Text(responseMessageID), db.Timestamptz(at),
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Record{}, err
	}
	var (
		recID      pgtype.UUID
		userID     pgtype.UUID
		rec        Record
		queuedAt   pgtype.Timestamptz
		responseID pgtype.Text
		delivered  pgtype.Timestamptz
	)
	err = s.conn.QueryRow(ctx,
		`SELECT id, user_id, sender_address, external_message_id, received_at,
		        response_queued_at, response_message_id, delivered_at
		 FROM message_latency WHERE id = $1`,
		pgID,
	).Scan(&recID, &userID, &rec.SenderAddress, &rec.ExternalMessageID, &rec.ReceivedAt, &queuedAt, &responseID, &delivered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.ID = db.UUIDToString(recID)
	rec.UserID = db.UUIDToString(userID)
	rec.ResponseQueuedAt = db.TimePtr(queuedAt)
	rec.ResponseMessageID = db.TextToString(responseID)
	rec.DeliveredAt = db.TimePtr(delivered)
	return rec, nil
}

func (s *PostgresStore) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM message_latency WHERE external_message_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func optionalUUID(id string) (pgtype.UUID, error) {
	if strings.TrimSpace(id) == "" {
		return pgtype.UUID{}, nil
	}
	return db.ParseUUID(id)
}
