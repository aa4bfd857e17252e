// Package usecase implements product business logic: stock management and the
// reservation side of the saga.
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
	"github.com/allisson/ordersaga/internal/money"
	outboxDomain "github.com/allisson/ordersaga/internal/outbox/domain"
	"github.com/allisson/ordersaga/internal/product/domain"
)

// Topics names the destinations for the messages the product service produces.
type Topics struct {
	ReservationResponse string
}

// ProductRepository defines product and reservation persistence operations.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	UpdateQuantities(ctx context.Context, product *domain.Product) error
	CreateReservation(ctx context.Context, res *domain.Reservation) error
	GetReservationsBySaga(ctx context.Context, sagaID uuid.UUID) ([]*domain.Reservation, error)
	UpdateReservation(ctx context.Context, res *domain.Reservation) error
}

// OutboxMessageRepository stages outgoing messages in the local transaction.
type OutboxMessageRepository interface {
	Create(ctx context.Context, msg *outboxDomain.OutboxMessage) error
}

// Product handles product business operations.
type Product struct {
	txManager   database.TxManager
	productRepo ProductRepository
	outboxRepo  OutboxMessageRepository
	topics      Topics
	metrics     metrics.BusinessMetrics
	logger      *slog.Logger
}

// NewProduct creates a new Product usecase.
func NewProduct(
	txManager database.TxManager,
	productRepo ProductRepository,
	outboxRepo OutboxMessageRepository,
	topics Topics,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Product {
	return &Product{
		txManager:   txManager,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		topics:      topics,
		metrics:     businessMetrics,
		logger:      logger,
	}
}

// Create adds a new product with an initial stock level.
func (p *Product) Create(ctx context.Context, name string, price money.Amount, quantity int) (*domain.Product, error) {
	product, err := domain.NewProduct(name, price, quantity)
	if err != nil {
		return nil, err
	}

	if err := p.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	p.logger.Info("product created",
		slog.String("product_id", product.ID.String()),
		slog.String("name", product.Name),
		slog.Int("quantity", product.QuantityAvailable),
	)
	return product, nil
}

// Get returns a product by id.
func (p *Product) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return p.productRepo.GetByID(ctx, id)
}

// respond stages a reservation response in the outbox inside the current
// transaction.
func (p *Product) respond(
	ctx context.Context,
	envelope messaging.Envelope,
	msgType, status string,
	failures []string,
) error {
	response, err := messaging.NewEnvelope(envelope.SagaID, envelope.OrderID, msgType, status, failures, nil)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	return p.outboxRepo.Create(ctx,
		outboxDomain.NewOutboxMessage(envelope.SagaID, p.topics.ReservationResponse, msgType, payload))
}

func (p *Product) record(ctx context.Context, operation, status string) {
	if p.metrics != nil {
		p.metrics.RecordOperation(ctx, "product", operation, status)
	}
}
