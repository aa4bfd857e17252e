package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

func newTestProduct(t *testing.T, quantity int) *Product {
	t.Helper()
	product, err := NewProduct("keyboard", money.MustFromString("49.90"), quantity)
	require.NoError(t, err)
	return product
}

func TestNewProduct(t *testing.T) {
	t.Run("valid product", func(t *testing.T) {
		product := newTestProduct(t, 10)
		assert.Equal(t, 10, product.QuantityAvailable)
		assert.Equal(t, 0, product.QuantityReserved)
		assert.Equal(t, 1, product.Version)
	})

	t.Run("invalid attributes", func(t *testing.T) {
		_, err := NewProduct("", money.MustFromString("1.00"), 1)
		assert.ErrorIs(t, err, ErrInvalidProduct)

		_, err = NewProduct("keyboard", money.MustFromString("-1.00"), 1)
		assert.ErrorIs(t, err, ErrInvalidProduct)

		_, err = NewProduct("keyboard", money.MustFromString("1.00"), -1)
		assert.ErrorIs(t, err, ErrInvalidProduct)
	})
}

func TestProductReserve(t *testing.T) {
	t.Run("moves units to reserved", func(t *testing.T) {
		product := newTestProduct(t, 10)

		require.NoError(t, product.Reserve(3))
		assert.Equal(t, 7, product.QuantityAvailable)
		assert.Equal(t, 3, product.QuantityReserved)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		product := newTestProduct(t, 2)

		err := product.Reserve(3)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, 2, product.QuantityAvailable)
		assert.Equal(t, 0, product.QuantityReserved)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		product := newTestProduct(t, 2)
		assert.Error(t, product.Reserve(0))
	})
}

func TestProductConfirmReservation(t *testing.T) {
	product := newTestProduct(t, 10)
	require.NoError(t, product.Reserve(4))

	require.NoError(t, product.ConfirmReservation(4))
	assert.Equal(t, 6, product.QuantityAvailable)
	assert.Equal(t, 0, product.QuantityReserved)

	err := product.ConfirmReservation(1)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestProductReleaseReservation(t *testing.T) {
	product := newTestProduct(t, 10)
	require.NoError(t, product.Reserve(4))

	require.NoError(t, product.ReleaseReservation(4))
	assert.Equal(t, 10, product.QuantityAvailable)
	assert.Equal(t, 0, product.QuantityReserved)

	err := product.ReleaseReservation(1)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestReservationTransitions(t *testing.T) {
	newRes := func() *Reservation {
		return NewReservation(uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), 2)
	}

	t.Run("confirm", func(t *testing.T) {
		res := newRes()
		require.NoError(t, res.Confirm())
		assert.Equal(t, ReservationStatusConfirmed, res.Status)

		err := res.Confirm()
		assert.ErrorIs(t, err, ErrReservationStateConflict)
	})

	t.Run("release", func(t *testing.T) {
		res := newRes()
		require.NoError(t, res.Release())
		assert.Equal(t, ReservationStatusReleased, res.Status)

		err := res.Confirm()
		assert.ErrorIs(t, err, ErrReservationStateConflict)
	})
}
