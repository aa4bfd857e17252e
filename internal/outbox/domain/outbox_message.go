// Package domain defines the transactional outbox entities and types.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// OutboxMessageStatus represents the dispatch status of an outbox message.
// Rows move STARTED -> PROCESSING -> COMPLETED or FAILED; timeout recovery is
// the only backward step (PROCESSING -> STARTED).
type OutboxMessageStatus string

const (
	OutboxMessageStatusStarted    OutboxMessageStatus = "STARTED"
	OutboxMessageStatusProcessing OutboxMessageStatus = "PROCESSING"
	OutboxMessageStatusCompleted  OutboxMessageStatus = "COMPLETED"
	OutboxMessageStatusFailed     OutboxMessageStatus = "FAILED"
)

// Domain-specific errors for outbox operations.
var (
	// ErrOutboxMessageNotFound indicates the requested outbox message does not exist.
	ErrOutboxMessageNotFound = apperrors.Wrap(apperrors.ErrNotFound, "outbox message not found")

	// ErrOutboxVersionConflict indicates the row changed since it was read.
	ErrOutboxVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "outbox message version conflict")
)

// OutboxMessage is a durable staging row for an outgoing event. It is written
// in the same local transaction as the domain mutation that produced it and
// relayed to the bus by the dispatcher.
type OutboxMessage struct {
	ID          uuid.UUID
	SagaID      uuid.UUID
	MessageID   uuid.UUID
	Topic       string
	Type        string
	Payload     json.RawMessage
	Status      OutboxMessageStatus
	CreatedAt   time.Time
	FetchedAt   *time.Time
	ProcessedAt *time.Time
	Version     int
}

// NewOutboxMessage creates a STARTED message bound for the given topic.
// MessageID doubles as the consumer-side de-duplication key.
func NewOutboxMessage(sagaID uuid.UUID, topic, msgType string, payload json.RawMessage) *OutboxMessage {
	return &OutboxMessage{
		ID:        uuid.Must(uuid.NewV7()),
		SagaID:    sagaID,
		MessageID: uuid.Must(uuid.NewV7()),
		Topic:     topic,
		Type:      msgType,
		Payload:   payload,
		Status:    OutboxMessageStatusStarted,
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
}
