// Package repository provides data persistence implementations for payments
// and customer credits.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/payment/domain"
)

// PostgreSQLPaymentRepository handles payment and credit persistence for
// PostgreSQL.
type PostgreSQLPaymentRepository struct {
	db *sql.DB
}

// NewPostgreSQLPaymentRepository creates a new PostgreSQLPaymentRepository.
func NewPostgreSQLPaymentRepository(db *sql.DB) *PostgreSQLPaymentRepository {
	return &PostgreSQLPaymentRepository{db: db}
}

// CreatePayment inserts a payment row. The unique saga id constraint turns a
// concurrent double-charge into ErrDuplicatePayment.
func (r *PostgreSQLPaymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO payments (id, saga_id, order_id, customer_id, price, status, failure_message, created_at, updated_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(ctx, query, payment.ID, payment.SagaID, payment.OrderID,
		payment.CustomerID, payment.Price, payment.Status, payment.FailureMessage,
		payment.CreatedAt, payment.UpdatedAt, payment.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePayment
		}
		return apperrors.Wrap(err, "failed to create payment")
	}
	return nil
}

// GetPaymentBySaga returns the payment of a saga, locked for update. Must run
// inside a transaction.
func (r *PostgreSQLPaymentRepository) GetPaymentBySaga(ctx context.Context, sagaID uuid.UUID) (*domain.Payment, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, saga_id, order_id, customer_id, price, status, failure_message, created_at, updated_at, version
			  FROM payments
			  WHERE saga_id = $1
			  FOR UPDATE`

	var payment domain.Payment
	err := querier.QueryRowContext(ctx, query, sagaID).Scan(&payment.ID, &payment.SagaID,
		&payment.OrderID, &payment.CustomerID, &payment.Price, &payment.Status,
		&payment.FailureMessage, &payment.CreatedAt, &payment.UpdatedAt, &payment.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get payment")
	}
	return &payment, nil
}

// UpdatePayment persists a payment transition with an optimistic version check.
func (r *PostgreSQLPaymentRepository) UpdatePayment(ctx context.Context, payment *domain.Payment) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE payments
			  SET status = $1, updated_at = NOW(), version = version + 1
			  WHERE id = $2 AND version = $3`

	result, err := querier.ExecContext(ctx, query, payment.Status, payment.ID, payment.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update payment")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrPaymentVersionConflict
	}

	payment.Version++
	payment.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateCredit opens a credit account.
func (r *PostgreSQLPaymentRepository) CreateCredit(ctx context.Context, credit *domain.Credit) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO credits (id, customer_id, amount, created_at, updated_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(ctx, query, credit.ID, credit.CustomerID, credit.Amount,
		credit.CreatedAt, credit.UpdatedAt, credit.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to create credit")
	}
	return nil
}

// GetCreditByCustomer returns the customer's credit account, locked for
// update. Must run inside a transaction so concurrent charges serialize on the
// balance.
func (r *PostgreSQLPaymentRepository) GetCreditByCustomer(
	ctx context.Context,
	customerID uuid.UUID,
) (*domain.Credit, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, customer_id, amount, created_at, updated_at, version
			  FROM credits
			  WHERE customer_id = $1
			  FOR UPDATE`

	var credit domain.Credit
	err := querier.QueryRowContext(ctx, query, customerID).Scan(&credit.ID, &credit.CustomerID,
		&credit.Amount, &credit.CreatedAt, &credit.UpdatedAt, &credit.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCreditNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get credit")
	}
	return &credit, nil
}

// UpdateCredit persists a balance change with an optimistic version check.
func (r *PostgreSQLPaymentRepository) UpdateCredit(ctx context.Context, credit *domain.Credit) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE credits
			  SET amount = $1, updated_at = NOW(), version = version + 1
			  WHERE id = $2 AND version = $3`

	result, err := querier.ExecContext(ctx, query, credit.Amount, credit.ID, credit.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update credit")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrCreditVersionConflict
	}

	credit.Version++
	credit.UpdatedAt = time.Now().UTC()
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if apperrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
