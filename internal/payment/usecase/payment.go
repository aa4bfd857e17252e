// Package usecase implements payment business logic: charging customer credit
// for sagas and refunding during compensation.
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
	"github.com/allisson/ordersaga/internal/payment/domain"
)

// Topics names the destinations for the messages the payment service produces.
type Topics struct {
	PaymentResponse string
}

// PaymentRepository defines payment and credit persistence operations.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPaymentBySaga(ctx context.Context, sagaID uuid.UUID) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, payment *domain.Payment) error
	CreateCredit(ctx context.Context, credit *domain.Credit) error
	GetCreditByCustomer(ctx context.Context, customerID uuid.UUID) (*domain.Credit, error)
	UpdateCredit(ctx context.Context, credit *domain.Credit) error
}

// OutboxMessageRepository stages outgoing messages in the local transaction.
type OutboxMessageRepository interface {
	Create(ctx context.Context, msg *outboxDomain.OutboxMessage) error
}

// Payment handles payment business operations.
type Payment struct {
	txManager   database.TxManager
	paymentRepo PaymentRepository
	outboxRepo  OutboxMessageRepository
	topics      Topics
	metrics     metrics.BusinessMetrics
	logger      *slog.Logger
}

// NewPayment creates a new Payment usecase.
func NewPayment(
	txManager database.TxManager,
	paymentRepo PaymentRepository,
	outboxRepo OutboxMessageRepository,
	topics Topics,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Payment {
	return &Payment{
		txManager:   txManager,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		topics:      topics,
		metrics:     businessMetrics,
		logger:      logger,
	}
}

// AddCredit tops up a customer's credit account, opening it on first use.
func (p *Payment) AddCredit(ctx context.Context, customerID uuid.UUID, amount money.Amount) (*domain.Credit, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidCreditAmount
	}

	var credit *domain.Credit
	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		existing, err := p.paymentRepo.GetCreditByCustomer(ctx, customerID)
		if err == nil {
			if err := existing.Deposit(amount); err != nil {
				return err
			}
			credit = existing
			return p.paymentRepo.UpdateCredit(ctx, existing)
		}
		if !apperrors.Is(err, domain.ErrCreditNotFound) {
			return err
		}

		credit, err = domain.NewCredit(customerID, amount)
		if err != nil {
			return err
		}
		return p.paymentRepo.CreateCredit(ctx, credit)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("credit added",
		slog.String("customer_id", customerID.String()),
		slog.String("amount", amount.String()),
		slog.String("balance", credit.Amount.String()),
	)
	return credit, nil
}

// respond stages a payment response in the outbox inside the current
// transaction.
func (p *Payment) respond(
	ctx context.Context,
	envelope messaging.Envelope,
	msgType string,
	payment *domain.Payment,
	failures []string,
) error {
	data := messaging.PaymentResponse{CustomerID: payment.CustomerID, Price: payment.Price}
	response, err := messaging.NewEnvelope(envelope.SagaID, envelope.OrderID, msgType,
		string(payment.Status), failures, data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	return p.outboxRepo.Create(ctx,
		outboxDomain.NewOutboxMessage(envelope.SagaID, p.topics.PaymentResponse, msgType, payload))
}

func (p *Payment) record(ctx context.Context, operation, status string) {
	if p.metrics != nil {
		p.metrics.RecordOperation(ctx, "payment", operation, status)
	}
}
