// Package repository provides data persistence implementations for products
// and stock reservations.
package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/product/domain"
)

// PostgreSQLProductRepository handles product persistence for PostgreSQL.
type PostgreSQLProductRepository struct {
	db *sql.DB
}

// NewPostgreSQLProductRepository creates a new PostgreSQLProductRepository.
func NewPostgreSQLProductRepository(db *sql.DB) *PostgreSQLProductRepository {
	return &PostgreSQLProductRepository{db: db}
}

const productColumns = `id, name, price, quantity_available, quantity_reserved,
	created_at, updated_at, version`

// Create inserts a new product.
func (r *PostgreSQLProductRepository) Create(ctx context.Context, product *domain.Product) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO products (id, name, price, quantity_available, quantity_reserved, created_at, updated_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, product.ID, product.Name, product.Price,
		product.QuantityAvailable, product.QuantityReserved, product.CreatedAt, product.UpdatedAt, product.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to create product")
	}
	return nil
}

// GetByID returns a product.
func (r *PostgreSQLProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(querier.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get product")
	}
	return product, nil
}

// LockByIDs loads the products with row locks, in ascending id order so
// concurrent reservations touching the same products cannot deadlock. Must run
// inside a transaction. Missing ids are simply absent from the result.
func (r *PostgreSQLProductRepository) LockByIDs(
	ctx context.Context,
	ids []uuid.UUID,
) (map[uuid.UUID]*domain.Product, error) {
	querier := database.GetTx(ctx, r.db)

	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)

	query := `SELECT ` + productColumns + `
			  FROM products
			  WHERE id = ANY($1)
			  ORDER BY id ASC
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to lock products")
	}
	defer rows.Close() //nolint:errcheck

	products := make(map[uuid.UUID]*domain.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan product")
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate products")
	}

	return products, nil
}

// UpdateQuantities persists a stock change with an optimistic version check.
func (r *PostgreSQLProductRepository) UpdateQuantities(ctx context.Context, product *domain.Product) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE products
			  SET quantity_available = $1, quantity_reserved = $2, updated_at = NOW(), version = version + 1
			  WHERE id = $3 AND version = $4`

	result, err := querier.ExecContext(ctx, query, product.QuantityAvailable, product.QuantityReserved,
		product.ID, product.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update product quantities")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrProductVersionConflict
	}

	product.Version++
	product.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateReservation inserts a reservation row inside the caller's transaction.
func (r *PostgreSQLProductRepository) CreateReservation(ctx context.Context, res *domain.Reservation) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO product_reservations (id, saga_id, order_id, product_id, quantity, status, created_at, updated_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, res.ID, res.SagaID, res.OrderID, res.ProductID,
		res.Quantity, res.Status, res.CreatedAt, res.UpdatedAt, res.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to create reservation")
	}
	return nil
}

// GetReservationsBySaga returns all reservation rows of a saga, locked for
// update. Must run inside a transaction.
func (r *PostgreSQLProductRepository) GetReservationsBySaga(
	ctx context.Context,
	sagaID uuid.UUID,
) ([]*domain.Reservation, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, saga_id, order_id, product_id, quantity, status, created_at, updated_at, version
			  FROM product_reservations
			  WHERE saga_id = $1
			  ORDER BY product_id ASC
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query, sagaID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get reservations")
	}
	defer rows.Close() //nolint:errcheck

	var reservations []*domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		err := rows.Scan(&res.ID, &res.SagaID, &res.OrderID, &res.ProductID, &res.Quantity,
			&res.Status, &res.CreatedAt, &res.UpdatedAt, &res.Version)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan reservation")
		}
		reservations = append(reservations, &res)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate reservations")
	}

	return reservations, nil
}

// UpdateReservation persists a reservation transition with an optimistic
// version check.
func (r *PostgreSQLProductRepository) UpdateReservation(ctx context.Context, res *domain.Reservation) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE product_reservations
			  SET status = $1, updated_at = NOW(), version = version + 1
			  WHERE id = $2 AND version = $3`

	result, err := querier.ExecContext(ctx, query, res.Status, res.ID, res.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update reservation")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrReservationVersionConflict
	}

	res.Version++
	res.UpdatedAt = time.Now().UTC()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var product domain.Product
	err := row.Scan(&product.ID, &product.Name, &product.Price, &product.QuantityAvailable,
		&product.QuantityReserved, &product.CreatedAt, &product.UpdatedAt, &product.Version)
	if err != nil {
		return nil, err
	}
	return &product, nil
}
