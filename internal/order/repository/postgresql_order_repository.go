// Package repository provides data persistence implementations for orders.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/order/domain"
)

// PostgreSQLOrderRepository handles order persistence for PostgreSQL.
type PostgreSQLOrderRepository struct {
	db *sql.DB
}

// NewPostgreSQLOrderRepository creates a new PostgreSQLOrderRepository.
func NewPostgreSQLOrderRepository(db *sql.DB) *PostgreSQLOrderRepository {
	return &PostgreSQLOrderRepository{db: db}
}

const orderColumns = `id, saga_id, customer_id, price, status, failure_messages,
	created_at, updated_at, version`

// Create inserts an order and its line items inside the caller's transaction.
func (r *PostgreSQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO orders (id, saga_id, customer_id, price, status, failure_messages, created_at, updated_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, order.ID, order.SagaID, order.CustomerID, order.Price,
		order.Status, pq.Array(order.FailureMessages), order.CreatedAt, order.UpdatedAt, order.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to create order")
	}

	itemQuery := `INSERT INTO order_items (id, order_id, product_id, quantity, price, sub_total)
				  VALUES ($1, $2, $3, $4, $5, $6)`

	for _, item := range order.Items {
		_, err := querier.ExecContext(ctx, itemQuery, item.ID, order.ID, item.ProductID,
			item.Quantity, item.Price, item.SubTotal)
		if err != nil {
			return apperrors.Wrap(err, "failed to create order item")
		}
	}

	return nil
}

// GetByID returns an order with its line items.
func (r *PostgreSQLOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getBy(ctx, "id", id, false)
}

// GetBySagaID returns the order owning a saga, locked for update so concurrent
// response handlers serialize on the aggregate and never trip the version
// check. Must run inside a transaction.
func (r *PostgreSQLOrderRepository) GetBySagaID(ctx context.Context, sagaID uuid.UUID) (*domain.Order, error) {
	return r.getBy(ctx, "saga_id", sagaID, true)
}

func (r *PostgreSQLOrderRepository) getBy(
	ctx context.Context,
	column string,
	id uuid.UUID,
	forUpdate bool,
) (*domain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var order domain.Order
	err := querier.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.SagaID, &order.CustomerID,
		&order.Price, &order.Status, pq.Array(&order.FailureMessages), &order.CreatedAt,
		&order.UpdatedAt, &order.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get order")
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

func (r *PostgreSQLOrderRepository) listItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, product_id, quantity, price, sub_total
			  FROM order_items
			  WHERE order_id = $1
			  ORDER BY id ASC`

	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list order items")
	}
	defer rows.Close() //nolint:errcheck

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.Price, &item.SubTotal); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan order item")
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate order items")
	}

	return items, nil
}

// List returns orders ordered by newest first. Line items are not loaded;
// GetByID returns the full aggregate.
func (r *PostgreSQLOrderRepository) List(ctx context.Context, offset, limit int) ([]*domain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + orderColumns + `
			  FROM orders
			  ORDER BY created_at DESC
			  OFFSET $1 LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list orders")
	}
	defer rows.Close() //nolint:errcheck

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		err := rows.Scan(&order.ID, &order.SagaID, &order.CustomerID, &order.Price, &order.Status,
			pq.Array(&order.FailureMessages), &order.CreatedAt, &order.UpdatedAt, &order.Version)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, &order)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate orders")
	}

	return orders, nil
}

// Update persists a saga transition with an optimistic version check. A zero
// affected-row count means a concurrent handler already moved the order on.
func (r *PostgreSQLOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE orders
			  SET status = $1, failure_messages = $2, updated_at = NOW(), version = version + 1
			  WHERE id = $3 AND version = $4`

	result, err := querier.ExecContext(ctx, query, order.Status, pq.Array(order.FailureMessages),
		order.ID, order.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update order")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	return nil
}
