// Package domain defines the order aggregate and its saga state machine.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

// OrderStatus represents the business state of an order. It is the single
// source of truth for the saga: the saga phase is derived from it, never
// stored separately.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusReserved   OrderStatus = "RESERVED"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusCancelling OrderStatus = "CANCELLING"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// SagaStatus is the saga phase derived from the order status.
type SagaStatus string

const (
	SagaStatusStarted      SagaStatus = "STARTED"
	SagaStatusProcessing   SagaStatus = "PROCESSING"
	SagaStatusSucceeded    SagaStatus = "SUCCEEDED"
	SagaStatusCompensating SagaStatus = "COMPENSATING"
	SagaStatusCompensated  SagaStatus = "COMPENSATED"
)

// Domain-specific errors for order operations.
var (
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = apperrors.Wrap(apperrors.ErrNotFound, "order not found")

	// ErrOrderStateConflict indicates a saga transition was attempted from the
	// wrong source state. Together with inbox de-duplication this guard keeps
	// replayed response messages from double-applying a transition.
	ErrOrderStateConflict = apperrors.Wrap(apperrors.ErrConflict, "order state conflict")

	// ErrOrderVersionConflict indicates the row changed since it was read.
	ErrOrderVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "order version conflict")

	// ErrEmptyOrder indicates an order without line items.
	ErrEmptyOrder = apperrors.Wrap(apperrors.ErrInvalidInput, "order must have at least one item")

	// ErrInvalidOrderItem indicates a line item with a non-positive quantity or price.
	ErrInvalidOrderItem = apperrors.Wrap(apperrors.ErrInvalidInput, "order item quantity and price must be positive")
)

// OrderItem is a single product line item.
type OrderItem struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Price     money.Amount
	SubTotal  money.Amount
}

// Order is the aggregate owning the saga. Each saga transition mutates the
// order status and enqueues exactly one outbox message in the same local
// transaction.
type Order struct {
	ID              uuid.UUID
	SagaID          uuid.UUID
	CustomerID      uuid.UUID
	Items           []OrderItem
	Price           money.Amount
	Status          OrderStatus
	FailureMessages []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

// NewOrder creates a PENDING order with a fresh saga id, computing the total
// price from the line items.
func NewOrder(customerID uuid.UUID, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	total := money.Zero()
	for i := range items {
		if items[i].Quantity <= 0 || !items[i].Price.IsPositive() {
			return nil, ErrInvalidOrderItem
		}
		items[i].ID = uuid.Must(uuid.NewV7())
		items[i].SubTotal = items[i].Price.MulInt(items[i].Quantity)
		total = total.Add(items[i].SubTotal)
	}

	now := time.Now().UTC()
	return &Order{
		ID:         uuid.Must(uuid.NewV7()),
		SagaID:     uuid.Must(uuid.NewV7()),
		CustomerID: customerID,
		Items:      items,
		Price:      total,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// MarkReserved advances PENDING -> RESERVED after an approved reservation.
func (o *Order) MarkReserved() error {
	return o.transition(OrderStatusReserved, OrderStatusPending)
}

// MarkPaid advances RESERVED -> PAID after a completed payment.
func (o *Order) MarkPaid() error {
	return o.transition(OrderStatusPaid, OrderStatusReserved)
}

// Confirm advances PAID -> CONFIRMED after the reservation is confirmed.
// CONFIRMED is terminal.
func (o *Order) Confirm() error {
	return o.transition(OrderStatusConfirmed, OrderStatusPaid)
}

// BeginCancellation moves a RESERVED or PAID order into CANCELLING while the
// compensating actions (credit refund, stock release) run.
func (o *Order) BeginCancellation(failures []string) error {
	if err := o.transition(OrderStatusCancelling, OrderStatusReserved, OrderStatusPaid); err != nil {
		return err
	}
	o.FailureMessages = append(o.FailureMessages, failures...)
	return nil
}

// Cancel terminates the saga: directly from PENDING when the reservation was
// rejected (nothing to compensate), or from CANCELLING once compensation is
// acknowledged. CANCELLED is terminal.
func (o *Order) Cancel(failures []string) error {
	if err := o.transition(OrderStatusCancelled, OrderStatusPending, OrderStatusCancelling); err != nil {
		return err
	}
	o.FailureMessages = append(o.FailureMessages, failures...)
	return nil
}

// transition applies the target status when the current status is one of the
// allowed sources.
func (o *Order) transition(target OrderStatus, allowed ...OrderStatus) error {
	for _, status := range allowed {
		if o.Status == status {
			o.Status = target
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return apperrors.Wrapf(ErrOrderStateConflict, "cannot transition order %s from %s to %s", o.ID, o.Status, target)
}

// SagaStatus derives the saga phase from the order status.
func (o *Order) SagaStatus() SagaStatus {
	switch o.Status {
	case OrderStatusPending:
		return SagaStatusStarted
	case OrderStatusReserved, OrderStatusPaid:
		return SagaStatusProcessing
	case OrderStatusConfirmed:
		return SagaStatusSucceeded
	case OrderStatusCancelling:
		return SagaStatusCompensating
	case OrderStatusCancelled:
		return SagaStatusCompensated
	default:
		return SagaStatusProcessing
	}
}
