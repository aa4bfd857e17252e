package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	inboxDomain "github.com/allisson/ordersaga/internal/inbox/domain"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/product/domain"
)

// SagaHandler applies reservation commands from the order service. It runs
// inside the inbox processing transaction, so stock changes, reservation rows
// and the response message commit atomically with the PROCESSED mark.
type SagaHandler struct {
	product *Product
}

// NewSagaHandler creates a new SagaHandler.
func NewSagaHandler(product *Product) *SagaHandler {
	return &SagaHandler{product: product}
}

// ResponseTypes maps inbound request types to the response types that may have
// been stored for them, for the duplicate-delivery republish path.
func ResponseTypes(inboundType string) []string {
	switch inboundType {
	case messaging.TypeReservationRequested:
		return []string{messaging.TypeReservationApproved, messaging.TypeReservationRejected}
	case messaging.TypeReservationConfirmRequested:
		return []string{messaging.TypeReservationConfirmed, messaging.TypeReservationRejected}
	case messaging.TypeReservationReleaseRequested:
		return []string{messaging.TypeReservationReleased}
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
	case messaging.TypeReservationRequested:
		return h.reserve(ctx, envelope)
	case messaging.TypeReservationConfirmRequested:
		return h.confirm(ctx, envelope)
	case messaging.TypeReservationReleaseRequested:
		return h.release(ctx, envelope)
	default:
		return apperrors.Wrapf(messaging.ErrUnknownMessageType, "type %q", envelope.Type)
	}
}

// reserve holds stock for every requested item or rejects the whole request.
// The reservation is all or nothing: a single unavailable item rejects the
// request with one failure message per problem, and no stock changes.
func (h *SagaHandler) reserve(ctx context.Context, envelope messaging.Envelope) error {
	var request messaging.ReservationRequest
	if err := envelope.DecodeData(&request); err != nil {
		return err
	}
	if len(request.Items) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "reservation request has no items")
	}

	existing, err := h.product.productRepo.GetReservationsBySaga(ctx, envelope.SagaID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return apperrors.Wrapf(domain.ErrReservationStateConflict,
			"saga %s already has a reservation", envelope.SagaID)
	}

	ids := make([]uuid.UUID, len(request.Items))
	for i, item := range request.Items {
		ids[i] = item.ProductID
	}

	products, err := h.product.productRepo.LockByIDs(ctx, ids)
	if err != nil {
		return err
	}

	var failures []string
	for _, item := range request.Items {
		product, ok := products[item.ProductID]
		if !ok {
			failures = append(failures, "product "+item.ProductID.String()+" not found")
			continue
		}
		if err := product.Reserve(item.Quantity); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if len(failures) > 0 {
		h.product.logger.Info("reservation rejected",
			slog.String("saga_id", envelope.SagaID.String()),
			slog.Any("failure_messages", failures),
		)
		h.product.record(ctx, "reserve", "rejected")
		return h.product.respond(ctx, envelope, messaging.TypeReservationRejected, "REJECTED", failures)
	}

	for _, item := range request.Items {
		product := products[item.ProductID]
		if err := h.product.productRepo.UpdateQuantities(ctx, product); err != nil {
			return err
		}
		res := domain.NewReservation(envelope.SagaID, envelope.OrderID, item.ProductID, item.Quantity)
		if err := h.product.productRepo.CreateReservation(ctx, res); err != nil {
			return err
		}
	}

	h.product.logger.Info("reservation approved",
		slog.String("saga_id", envelope.SagaID.String()),
		slog.Int("items", len(request.Items)),
	)
	h.product.record(ctx, "reserve", "success")
	return h.product.respond(ctx, envelope, messaging.TypeReservationApproved,
		string(domain.ReservationStatusReserved), nil)
}

// confirm permanently deducts the reserved stock of a saga.
func (h *SagaHandler) confirm(ctx context.Context, envelope messaging.Envelope) error {
	reservations, err := h.loadReserved(ctx, envelope.SagaID)
	if err != nil {
		return err
	}

	for _, res := range reservations {
		product, err := h.product.productRepo.GetByID(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := product.ConfirmReservation(res.Quantity); err != nil {
			return err
		}
		if err := h.product.productRepo.UpdateQuantities(ctx, product); err != nil {
			return err
		}
		if err := res.Confirm(); err != nil {
			return err
		}
		if err := h.product.productRepo.UpdateReservation(ctx, res); err != nil {
			return err
		}
	}

	h.product.record(ctx, "confirm", "success")
	return h.product.respond(ctx, envelope, messaging.TypeReservationConfirmed,
		string(domain.ReservationStatusConfirmed), nil)
}

// release returns the reserved stock of a saga to availability.
func (h *SagaHandler) release(ctx context.Context, envelope messaging.Envelope) error {
	reservations, err := h.loadReserved(ctx, envelope.SagaID)
	if err != nil {
		return err
	}

	for _, res := range reservations {
		product, err := h.product.productRepo.GetByID(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := product.ReleaseReservation(res.Quantity); err != nil {
			return err
		}
		if err := h.product.productRepo.UpdateQuantities(ctx, product); err != nil {
			return err
		}
		if err := res.Release(); err != nil {
			return err
		}
		if err := h.product.productRepo.UpdateReservation(ctx, res); err != nil {
			return err
		}
	}

	h.product.record(ctx, "release", "success")
	return h.product.respond(ctx, envelope, messaging.TypeReservationReleased,
		string(domain.ReservationStatusReleased), envelope.FailureMessages)
}

// loadReserved returns the saga's reservation rows, requiring all of them to
// still be RESERVED. A missing reservation or one already moved on is a
// conflict the caller treats as an idempotent skip.
func (h *SagaHandler) loadReserved(ctx context.Context, sagaID uuid.UUID) ([]*domain.Reservation, error) {
	reservations, err := h.product.productRepo.GetReservationsBySaga(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	if len(reservations) == 0 {
		return nil, apperrors.Wrapf(domain.ErrReservationNotFound, "saga %s", sagaID)
	}

	for _, res := range reservations {
		if res.Status != domain.ReservationStatusReserved {
			return nil, apperrors.Wrapf(domain.ErrReservationStateConflict,
				"reservation %s is %s", res.ID, res.Status)
		}
	}

	return reservations, nil
}
