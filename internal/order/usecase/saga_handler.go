package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	inboxDomain "github.com/allisson/ordersaga/internal/inbox/domain"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/order/domain"
)

// SagaHandler applies product and payment responses to the order aggregate.
// It runs inside the inbox processing transaction, so the order transition and
// the next staged message commit atomically with the PROCESSED mark.
type SagaHandler struct {
	order *Order
}

// NewSagaHandler creates a new SagaHandler.
func NewSagaHandler(order *Order) *SagaHandler {
	return &SagaHandler{order: order}
}

// Handle dispatches one staged response message to its transition.
func (h *SagaHandler) Handle(ctx context.Context, msg *inboxDomain.InboxMessage) error {
	var envelope messaging.Envelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "failed to decode envelope: "+err.Error())
	}

	order, err := h.order.orderRepo.GetBySagaID(ctx, envelope.SagaID)
	if err != nil {
		return err
	}

	switch envelope.Type {
	case messaging.TypeReservationApproved:
		return h.reservationApproved(ctx, order)
	case messaging.TypeReservationRejected:
		return h.reservationRejected(ctx, order, envelope.FailureMessages)
	case messaging.TypeReservationConfirmed:
		return h.reservationConfirmed(ctx, order)
	case messaging.TypeReservationReleased:
		return h.reservationReleased(ctx, order, envelope.FailureMessages)
	case messaging.TypePaymentCompleted:
		return h.paymentCompleted(ctx, order)
	case messaging.TypePaymentFailed:
		return h.paymentFailed(ctx, order, envelope.FailureMessages)
	case messaging.TypePaymentCancelled:
		return h.paymentCancelled(ctx, order)
	default:
		return apperrors.Wrapf(messaging.ErrUnknownMessageType, "type %q", envelope.Type)
	}
}

// reservationApproved advances the order to RESERVED and requests the payment.
func (h *SagaHandler) reservationApproved(ctx context.Context, order *domain.Order) error {
	if err := order.MarkReserved(); err != nil {
		return err
	}
	if err := h.order.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	return h.order.enqueue(ctx, order, h.order.topics.PaymentRequest, messaging.TypePaymentRequested,
		messaging.PaymentRequest{CustomerID: order.CustomerID, Price: order.Price})
}

// reservationRejected cancels a PENDING order outright. When the rejection
// answers a confirm request on a PAID order, the payment must be compensated
// first, so the order moves to CANCELLING and a cancel request goes out.
func (h *SagaHandler) reservationRejected(ctx context.Context, order *domain.Order, failures []string) error {
	if order.Status == domain.OrderStatusPaid {
		if err := order.BeginCancellation(failures); err != nil {
			return err
		}
		if err := h.order.orderRepo.Update(ctx, order); err != nil {
			return err
		}
		return h.order.enqueue(ctx, order, h.order.topics.PaymentRequest,
			messaging.TypePaymentCancelRequested, nil)
	}

	if err := order.Cancel(failures); err != nil {
		return err
	}
	return h.order.orderRepo.Update(ctx, order)
}

// paymentCompleted advances the order to PAID and asks the product service to
// make the reservation permanent.
func (h *SagaHandler) paymentCompleted(ctx context.Context, order *domain.Order) error {
	if err := order.MarkPaid(); err != nil {
		return err
	}
	if err := h.order.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	return h.order.enqueue(ctx, order, h.order.topics.ReservationRequest,
		messaging.TypeReservationConfirmRequested, nil)
}

// paymentFailed starts compensation: the reserved stock must be released.
func (h *SagaHandler) paymentFailed(ctx context.Context, order *domain.Order, failures []string) error {
	if err := order.BeginCancellation(failures); err != nil {
		return err
	}
	if err := h.order.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	return h.order.enqueue(ctx, order, h.order.topics.ReservationRequest,
		messaging.TypeReservationReleaseRequested, nil)
}

// paymentCancelled acknowledges a refund during compensation and releases the
// stock held by the reservation. The order stays CANCELLING until the release
// is acknowledged.
func (h *SagaHandler) paymentCancelled(ctx context.Context, order *domain.Order) error {
	if order.Status != domain.OrderStatusCancelling {
		return apperrors.Wrapf(domain.ErrOrderStateConflict,
			"payment cancelled for order %s in status %s", order.ID, order.Status)
	}

	h.order.logger.Info("payment refunded during compensation",
		slog.String("order_id", order.ID.String()),
		slog.String("saga_id", order.SagaID.String()),
	)

	return h.order.enqueue(ctx, order, h.order.topics.ReservationRequest,
		messaging.TypeReservationReleaseRequested, nil)
}

// reservationConfirmed completes the saga.
func (h *SagaHandler) reservationConfirmed(ctx context.Context, order *domain.Order) error {
	if err := order.Confirm(); err != nil {
		return err
	}
	if err := h.order.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	h.order.logger.Info("order confirmed",
		slog.String("order_id", order.ID.String()),
		slog.String("saga_id", order.SagaID.String()),
	)
	return nil
}

// reservationReleased finishes compensation: the order reaches CANCELLED.
func (h *SagaHandler) reservationReleased(ctx context.Context, order *domain.Order, failures []string) error {
	if err := order.Cancel(failures); err != nil {
		return err
	}
	if err := h.order.orderRepo.Update(ctx, order); err != nil {
		return err
	}

	h.order.logger.Info("order cancelled",
		slog.String("order_id", order.ID.String()),
		slog.String("saga_id", order.SagaID.String()),
		slog.Any("failure_messages", order.FailureMessages),
	)
	return nil
}
