// Package domain defines payments and customer credit balances.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

// PaymentStatus represents the state of a payment.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Domain-specific errors for payment operations.
var (
	// ErrPaymentNotFound indicates no payment exists for the saga.
	ErrPaymentNotFound = apperrors.Wrap(apperrors.ErrNotFound, "payment not found")

	// ErrPaymentStateConflict indicates a transition from the wrong state.
	ErrPaymentStateConflict = apperrors.Wrap(apperrors.ErrConflict, "payment state conflict")

	// ErrPaymentVersionConflict indicates the row changed since it was read.
	ErrPaymentVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "payment version conflict")

	// ErrDuplicatePayment indicates a payment already exists for the saga.
	ErrDuplicatePayment = apperrors.Wrap(apperrors.ErrConflict, "payment already exists for saga")
)

// Payment records the outcome of one saga's charge. A saga has at most one
// payment row; the unique saga id constraint enforces it.
type Payment struct {
	ID             uuid.UUID
	SagaID         uuid.UUID
	OrderID        uuid.UUID
	CustomerID     uuid.UUID
	Price          money.Amount
	Status         PaymentStatus
	FailureMessage *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

// NewCompletedPayment records a successful charge.
func NewCompletedPayment(sagaID, orderID, customerID uuid.UUID, price money.Amount) *Payment {
	return newPayment(sagaID, orderID, customerID, price, PaymentStatusCompleted, nil)
}

// NewFailedPayment records a rejected charge with the rejection reason.
func NewFailedPayment(sagaID, orderID, customerID uuid.UUID, price money.Amount, reason string) *Payment {
	return newPayment(sagaID, orderID, customerID, price, PaymentStatusFailed, &reason)
}

func newPayment(
	sagaID, orderID, customerID uuid.UUID,
	price money.Amount,
	status PaymentStatus,
	failureMessage *string,
) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:             uuid.Must(uuid.NewV7()),
		SagaID:         sagaID,
		OrderID:        orderID,
		CustomerID:     customerID,
		Price:          price,
		Status:         status,
		FailureMessage: failureMessage,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
}

// Cancel refunds a COMPLETED payment during saga compensation.
func (p *Payment) Cancel() error {
	if p.Status != PaymentStatusCompleted {
		return apperrors.Wrapf(ErrPaymentStateConflict,
			"cannot cancel payment %s in status %s", p.ID, p.Status)
	}
	p.Status = PaymentStatusCancelled
	p.UpdatedAt = time.Now().UTC()
	return nil
}
