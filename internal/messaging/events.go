// Package messaging defines the saga event contract and the Kafka publish and
// consume adapters. Every event travels inside an Envelope keyed by saga id,
// so the bus preserves per-saga ordering.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

// Message types carried by the saga topics. Dispatch switches over these
// exhaustively; adding a new type means adding a constant, a payload struct
// and a handler case.
const (
	TypeReservationRequested        = "reservation.requested"
	TypeReservationConfirmRequested = "reservation.confirm.requested"
	TypeReservationReleaseRequested = "reservation.release.requested"
	TypeReservationApproved         = "reservation.approved"
	TypeReservationRejected         = "reservation.rejected"
	TypeReservationConfirmed        = "reservation.confirmed"
	TypeReservationReleased         = "reservation.released"
	TypePaymentRequested            = "payment.requested"
	TypePaymentCancelRequested      = "payment.cancel.requested"
	TypePaymentCompleted            = "payment.completed"
	TypePaymentFailed               = "payment.failed"
	TypePaymentCancelled            = "payment.cancelled"
)

// ErrUnknownMessageType indicates an envelope type no handler recognizes.
var ErrUnknownMessageType = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown message type")

// Envelope is the wire shape shared by all saga topics. ID is the
// de-duplication key on the consuming side; SagaID is the Kafka message key.
type Envelope struct {
	ID              uuid.UUID       `json:"id"`
	SagaID          uuid.UUID       `json:"saga_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	Type            string          `json:"type"`
	CreatedAt       time.Time       `json:"created_at"`
	Status          string          `json:"status,omitempty"`
	FailureMessages []string        `json:"failure_messages,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with a fresh UUIDv7 id, marshaling the
// type-specific payload into Data. A nil data leaves Data empty.
func NewEnvelope(sagaID, orderID uuid.UUID, msgType, status string, failures []string, data any) (Envelope, error) {
	envelope := Envelope{
		ID:              uuid.Must(uuid.NewV7()),
		SagaID:          sagaID,
		OrderID:         orderID,
		Type:            msgType,
		CreatedAt:       time.Now().UTC(),
		Status:          status,
		FailureMessages: failures,
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, apperrors.Wrap(err, "failed to marshal event data")
		}
		envelope.Data = raw
	}

	return envelope, nil
}

// DecodeData unmarshals the type-specific payload into v.
func (e Envelope) DecodeData(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "failed to decode event data: "+err.Error())
	}
	return nil
}

// ReservationItem is a single product line item in a reservation request.
type ReservationItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ReservationRequest asks the product service to reserve stock for an order.
type ReservationRequest struct {
	CustomerID uuid.UUID         `json:"customer_id"`
	Items      []ReservationItem `json:"items"`
}

// PaymentRequest asks the payment service to debit the customer's credit.
type PaymentRequest struct {
	CustomerID uuid.UUID    `json:"customer_id"`
	Price      money.Amount `json:"price"`
}

// PaymentResponse reports the payment outcome; the envelope status carries
// COMPLETED, FAILED or CANCELLED.
type PaymentResponse struct {
	CustomerID uuid.UUID    `json:"customer_id"`
	Price      money.Amount `json:"price"`
}
