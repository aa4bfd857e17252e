// Package domain defines the durable inbox entities and types.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// InboxMessageStatus represents the processing status of an inbox message.
type InboxMessageStatus string

const (
	InboxMessageStatusReceived  InboxMessageStatus = "RECEIVED"
	InboxMessageStatusProcessed InboxMessageStatus = "PROCESSED"
	InboxMessageStatusFailed    InboxMessageStatus = "FAILED"
)

// Domain-specific errors for inbox operations.
var (
	// ErrInboxMessageNotFound indicates the requested inbox message does not exist.
	ErrInboxMessageNotFound = apperrors.Wrap(apperrors.ErrNotFound, "inbox message not found")

	// ErrDuplicateMessage indicates a message with the same de-duplication key
	// was already staged. This is how redelivered bus messages are detected.
	ErrDuplicateMessage = apperrors.Wrap(apperrors.ErrConflict, "duplicate inbox message")

	// ErrInboxVersionConflict indicates the row changed since it was read.
	ErrInboxVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "inbox message version conflict")
)

// InboxMessage is a durably staged inbound event. Receipt is decoupled from
// processing: the consumer inserts the row as soon as the message arrives and
// the processor applies the domain effect later, exactly once.
type InboxMessage struct {
	ID           uuid.UUID
	MessageID    uuid.UUID
	SagaID       uuid.UUID
	Type         string
	Payload      json.RawMessage
	Status       InboxMessageStatus
	ReceivedAt   time.Time
	ProcessedAt  *time.Time
	RetryCount   int
	ErrorMessage *string
	Version      int
}

// NewInboxMessage stages an inbound event in RECEIVED state. messageID is the
// producer-assigned id used as the de-duplication key.
func NewInboxMessage(messageID, sagaID uuid.UUID, msgType string, payload json.RawMessage) *InboxMessage {
	return &InboxMessage{
		ID:         uuid.Must(uuid.NewV7()),
		MessageID:  messageID,
		SagaID:     sagaID,
		Type:       msgType,
		Payload:    payload,
		Status:     InboxMessageStatusReceived,
		ReceivedAt: time.Now().UTC(),
		Version:    1,
	}
}
