// Package domain defines the product aggregate and stock reservations.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

// Domain-specific errors for product operations.
var (
	// ErrProductNotFound indicates the requested product does not exist.
	ErrProductNotFound = apperrors.Wrap(apperrors.ErrNotFound, "product not found")

	// ErrInsufficientStock indicates a reservation asked for more units than
	// are available. This is a business rejection, not a processing failure:
	// the saga answers with a rejected reservation instead of retrying.
	ErrInsufficientStock = apperrors.New("insufficient stock")

	// ErrInvalidProduct indicates invalid product attributes.
	ErrInvalidProduct = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid product")

	// ErrProductVersionConflict indicates the row changed since it was read.
	ErrProductVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "product version conflict")
)

// Product tracks sellable stock. Available units can be reserved by a saga;
// reserved units are either confirmed (permanently deducted) or released back.
type Product struct {
	ID                uuid.UUID
	Name              string
	Price             money.Amount
	QuantityAvailable int
	QuantityReserved  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// NewProduct creates a product with an initial stock level.
func NewProduct(name string, price money.Amount, quantity int) (*Product, error) {
	if name == "" || quantity < 0 || price.IsNegative() {
		return nil, ErrInvalidProduct
	}

	now := time.Now().UTC()
	return &Product{
		ID:                uuid.Must(uuid.NewV7()),
		Name:              name,
		Price:             price,
		QuantityAvailable: quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}, nil
}

// Reserve moves quantity units from available to reserved.
func (p *Product) Reserve(quantity int) error {
	if quantity <= 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "reservation quantity must be positive")
	}
	if p.QuantityAvailable < quantity {
		return apperrors.Wrapf(ErrInsufficientStock,
			"product %s has %d units available, %d requested", p.ID, p.QuantityAvailable, quantity)
	}
	p.QuantityAvailable -= quantity
	p.QuantityReserved += quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ConfirmReservation permanently deducts reserved units.
func (p *Product) ConfirmReservation(quantity int) error {
	if quantity <= 0 || p.QuantityReserved < quantity {
		return apperrors.Wrapf(apperrors.ErrConflict,
			"product %s has %d units reserved, cannot confirm %d", p.ID, p.QuantityReserved, quantity)
	}
	p.QuantityReserved -= quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ReleaseReservation returns reserved units to available stock.
func (p *Product) ReleaseReservation(quantity int) error {
	if quantity <= 0 || p.QuantityReserved < quantity {
		return apperrors.Wrapf(apperrors.ErrConflict,
			"product %s has %d units reserved, cannot release %d", p.ID, p.QuantityReserved, quantity)
	}
	p.QuantityReserved -= quantity
	p.QuantityAvailable += quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}
