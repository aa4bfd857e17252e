// Package usecase implements order business logic: order creation starting a
// new saga and the handler applying saga responses to the order aggregate.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/metrics"
	"github.com/allisson/ordersaga/internal/order/domain"
	outboxDomain "github.com/allisson/ordersaga/internal/outbox/domain"
)

// Topics names the destinations for the messages the order service produces.
type Topics struct {
	ReservationRequest string
	PaymentRequest     string
}

// OrderRepository defines order persistence operations.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetBySagaID(ctx context.Context, sagaID uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, offset, limit int) ([]*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
}

// OutboxMessageRepository stages outgoing messages in the local transaction.
type OutboxMessageRepository interface {
	Create(ctx context.Context, msg *outboxDomain.OutboxMessage) error
}

// Order handles order business operations.
type Order struct {
	txManager  database.TxManager
	orderRepo  OrderRepository
	outboxRepo OutboxMessageRepository
	topics     Topics
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger
}

// NewOrder creates a new Order usecase.
func NewOrder(
	txManager database.TxManager,
	orderRepo OrderRepository,
	outboxRepo OutboxMessageRepository,
	topics Topics,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Order {
	return &Order{
		txManager:  txManager,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		topics:     topics,
		metrics:    businessMetrics,
		logger:     logger,
	}
}

// Create persists a new PENDING order and stages the reservation request in
// the same transaction, starting the saga.
func (o *Order) Create(ctx context.Context, customerID uuid.UUID, items []domain.OrderItem) (*domain.Order, error) {
	order, err := domain.NewOrder(customerID, items)
	if err != nil {
		o.record(ctx, "create", "error")
		return nil, err
	}

	err = o.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := o.orderRepo.Create(ctx, order); err != nil {
			return err
		}

		reservationItems := make([]messaging.ReservationItem, len(order.Items))
		for i, item := range order.Items {
			reservationItems[i] = messaging.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity}
		}

		return o.enqueue(ctx, order, o.topics.ReservationRequest, messaging.TypeReservationRequested,
			messaging.ReservationRequest{CustomerID: order.CustomerID, Items: reservationItems})
	})
	if err != nil {
		o.record(ctx, "create", "error")
		return nil, err
	}

	o.logger.Info("order created",
		slog.String("order_id", order.ID.String()),
		slog.String("saga_id", order.SagaID.String()),
		slog.String("price", order.Price.String()),
	)
	o.record(ctx, "create", "success")
	return order, nil
}

// Get returns an order by id.
func (o *Order) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return o.orderRepo.GetByID(ctx, id)
}

// List returns orders ordered by newest first.
func (o *Order) List(ctx context.Context, offset, limit int) ([]*domain.Order, error) {
	return o.orderRepo.List(ctx, offset, limit)
}

// enqueue stages a saga message in the outbox inside the current transaction.
func (o *Order) enqueue(ctx context.Context, order *domain.Order, topic, msgType string, data any) error {
	envelope, err := messaging.NewEnvelope(order.SagaID, order.ID, msgType,
		string(order.SagaStatus()), order.FailureMessages, data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	return o.outboxRepo.Create(ctx, outboxDomain.NewOutboxMessage(order.SagaID, topic, msgType, payload))
}

func (o *Order) record(ctx context.Context, operation, status string) {
	if o.metrics != nil {
		o.metrics.RecordOperation(ctx, "order", operation, status)
	}
}
