package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	inboxDomain "github.com/allisson/ordersaga/internal/inbox/domain"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/payment/domain"
)

// SagaHandler applies payment commands from the order service. It runs inside
// the inbox processing transaction, so credit changes, the payment row and the
// response message commit atomically with the PROCESSED mark.
type SagaHandler struct {
	payment *Payment
}

// NewSagaHandler creates a new SagaHandler.
func NewSagaHandler(payment *Payment) *SagaHandler {
	return &SagaHandler{payment: payment}
}

// ResponseTypes maps inbound request types to the response types that may have
// been stored for them, for the duplicate-delivery republish path.
func ResponseTypes(inboundType string) []string {
	switch inboundType {
	case messaging.TypePaymentRequested:
		return []string{messaging.TypePaymentCompleted, messaging.TypePaymentFailed}
	case messaging.TypePaymentCancelRequested:
		return []string{messaging.TypePaymentCancelled}
	default:
		return nil
	}
}

// Handle dispatches one staged command message.
func (h *SagaHandler) Handle(ctx context.Context, msg *inboxDomain.InboxMessage) error {
	var envelope messaging.Envelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "failed to decode envelope: "+err.Error())
	}

	switch envelope.Type {
	case messaging.TypePaymentRequested:
		return h.charge(ctx, envelope)
	case messaging.TypePaymentCancelRequested:
		return h.cancel(ctx, envelope)
	default:
		return apperrors.Wrapf(messaging.ErrUnknownMessageType, "type %q", envelope.Type)
	}
}

// charge debits the customer's credit. An insufficient or missing balance is a
// business rejection: a FAILED payment row is recorded and a failure response
// goes out, and no retry happens.
func (h *SagaHandler) charge(ctx context.Context, envelope messaging.Envelope) error {
	var request messaging.PaymentRequest
	if err := envelope.DecodeData(&request); err != nil {
		return err
	}
	if !request.Price.IsPositive() {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "payment price must be positive")
	}

	credit, err := h.payment.paymentRepo.GetCreditByCustomer(ctx, request.CustomerID)
	if err != nil && !apperrors.Is(err, domain.ErrCreditNotFound) {
		return err
	}

	var debitErr error
	if credit == nil {
		debitErr = apperrors.Wrapf(domain.ErrInsufficientCredit,
			"customer %s has no credit account", request.CustomerID)
	} else {
		debitErr = credit.Debit(request.Price)
	}

	if debitErr != nil {
		if !apperrors.Is(debitErr, domain.ErrInsufficientCredit) {
			return debitErr
		}

		payment := domain.NewFailedPayment(envelope.SagaID, envelope.OrderID,
			request.CustomerID, request.Price, debitErr.Error())
		if err := h.payment.paymentRepo.CreatePayment(ctx, payment); err != nil {
			return err
		}

		h.payment.logger.Info("payment rejected",
			slog.String("saga_id", envelope.SagaID.String()),
			slog.String("customer_id", request.CustomerID.String()),
			slog.String("reason", debitErr.Error()),
		)
		h.payment.record(ctx, "charge", "rejected")
		return h.payment.respond(ctx, envelope, messaging.TypePaymentFailed, payment, []string{debitErr.Error()})
	}

	payment := domain.NewCompletedPayment(envelope.SagaID, envelope.OrderID, request.CustomerID, request.Price)
	if err := h.payment.paymentRepo.CreatePayment(ctx, payment); err != nil {
		return err
	}
	if err := h.payment.paymentRepo.UpdateCredit(ctx, credit); err != nil {
		return err
	}

	h.payment.logger.Info("payment completed",
		slog.String("saga_id", envelope.SagaID.String()),
		slog.String("customer_id", request.CustomerID.String()),
		slog.String("price", request.Price.String()),
	)
	h.payment.record(ctx, "charge", "success")
	return h.payment.respond(ctx, envelope, messaging.TypePaymentCompleted, payment, nil)
}

// cancel refunds a completed payment during saga compensation.
func (h *SagaHandler) cancel(ctx context.Context, envelope messaging.Envelope) error {
	payment, err := h.payment.paymentRepo.GetPaymentBySaga(ctx, envelope.SagaID)
	if err != nil {
		return err
	}

	if err := payment.Cancel(); err != nil {
		return err
	}

	credit, err := h.payment.paymentRepo.GetCreditByCustomer(ctx, payment.CustomerID)
	if err != nil {
		return err
	}
	if err := credit.Refund(payment.Price); err != nil {
		return err
	}

	if err := h.payment.paymentRepo.UpdatePayment(ctx, payment); err != nil {
		return err
	}
	if err := h.payment.paymentRepo.UpdateCredit(ctx, credit); err != nil {
		return err
	}

	h.payment.logger.Info("payment cancelled",
		slog.String("saga_id", envelope.SagaID.String()),
		slog.String("customer_id", payment.CustomerID.String()),
		slog.String("refunded", payment.Price.String()),
	)
	h.payment.record(ctx, "cancel", "success")
	return h.payment.respond(ctx, envelope, messaging.TypePaymentCancelled, payment, envelope.FailureMessages)
}
