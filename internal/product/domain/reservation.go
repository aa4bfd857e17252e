package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// ReservationStatus represents the state of a stock reservation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

// Domain-specific errors for reservation operations.
var (
	// ErrReservationNotFound indicates no reservation exists for the saga.
	ErrReservationNotFound = apperrors.Wrap(apperrors.ErrNotFound, "reservation not found")

	// ErrReservationStateConflict indicates a transition from the wrong state.
	ErrReservationStateConflict = apperrors.Wrap(apperrors.ErrConflict, "reservation state conflict")

	// ErrReservationVersionConflict indicates the row changed since it was read.
	ErrReservationVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "reservation version conflict")
)

// Reservation holds units of one product for one saga. A saga reserving
// several products owns one row per product; confirm and release apply to all
// rows of the saga together.
type Reservation struct {
	ID        uuid.UUID
	SagaID    uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// NewReservation creates a RESERVED reservation for one product.
func NewReservation(sagaID, orderID, productID uuid.UUID, quantity int) *Reservation {
	now := time.Now().UTC()
	return &Reservation{
		ID:        uuid.Must(uuid.NewV7()),
		SagaID:    sagaID,
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		Status:    ReservationStatusReserved,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Confirm advances RESERVED -> CONFIRMED.
func (r *Reservation) Confirm() error {
	return r.transition(ReservationStatusConfirmed, ReservationStatusReserved)
}

// Release advances RESERVED -> RELEASED.
func (r *Reservation) Release() error {
	return r.transition(ReservationStatusReleased, ReservationStatusReserved)
}

func (r *Reservation) transition(target, source ReservationStatus) error {
	if r.Status != source {
		return apperrors.Wrapf(ErrReservationStateConflict,
			"cannot transition reservation %s from %s to %s", r.ID, r.Status, target)
	}
	r.Status = target
	r.UpdatedAt = time.Now().UTC()
	return nil
}
