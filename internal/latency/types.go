package latency

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("latency record not found")

// Record tracks one inbound message from receipt to delivered reply.
type Record struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id,omitempty"`
	SenderAddress     string     `json:"sender_address"`
	ExternalMessageID string     `json:"external_message_id"`
	ReceivedAt        time.Time  `json:"received_at"`
	ResponseQueuedAt  *time.Time `json:"response_queued_at,omitempty"`
	ResponseMessageID string     `json:"response_message_id,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

// Complete reports whether the reply was queued and delivered.
func (r Record) Complete() bool {
	return r.ResponseQueuedAt != nil && r.ResponseMessageID != "" && r.DeliveredAt != nil
}

// Store persists latency records.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	MarkQueued(ctx context.Context, id, userID string, at time.Time) error
	MarkDelivered(ctx context.Context, id, responseMessageID string, at time.Time) error
	Get(ctx context.Context, id string) (Record, error)
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
}
