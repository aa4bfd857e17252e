package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
	"github.com/allisson/ordersaga/internal/product/domain"
	"github.com/allisson/ordersaga/internal/testutil"
)

func createProduct(t *testing.T, repo *PostgreSQLProductRepository, name string, quantity int) *domain.Product {
	t.Helper()

	product, err := domain.NewProduct(name, money.MustFromString("49.90"), quantity)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), product))
	return product
}

func TestPostgreSQLProductRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Mechanical Keyboard", 10)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, found.ID)
	assert.Equal(t, "Mechanical Keyboard", found.Name)
	assert.True(t, found.Price.Equal(money.MustFromString("49.90")))
	assert.Equal(t, 10, found.QuantityAvailable)
	assert.Equal(t, 0, found.QuantityReserved)
}

func TestPostgreSQLProductRepository_GetByIDNotFound(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestPostgreSQLProductRepository_LockByIDs(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	first := createProduct(t, repo, "Mouse", 5)
	second := createProduct(t, repo, "Monitor", 3)
	missing := uuid.Must(uuid.NewV7())

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		products, err := repo.LockByIDs(ctx, []uuid.UUID{first.ID, second.ID, missing})
		require.NoError(t, err)

		// Missing ids are absent from the result, not an error.
		require.Len(t, products, 2)
		assert.Equal(t, first.Name, products[first.ID].Name)
		assert.Equal(t, second.Name, products[second.ID].Name)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgreSQLProductRepository_UpdateQuantities(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Headset", 10)
	require.NoError(t, product.Reserve(4))

	err := repo.UpdateQuantities(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, 2, product.Version)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, found.QuantityAvailable)
	assert.Equal(t, 4, found.QuantityReserved)
	assert.Equal(t, 2, found.Version)
}

func TestPostgreSQLProductRepository_UpdateQuantitiesVersionConflict(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Webcam", 10)

	stale := *product
	require.NoError(t, product.Reserve(1))
	require.NoError(t, repo.UpdateQuantities(ctx, product))

	// The stale copy still carries the old version.
	require.NoError(t, stale.Reserve(1))
	err := repo.UpdateQuantities(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrProductVersionConflict)
}

func TestPostgreSQLProductRepository_ConcurrentReservations(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Graphics Card", 10)

	// Two reservations of 6 units race for 10 units of stock. The row lock
	// serializes them: the loser re-reads 4 available units and is rejected.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- txManager.WithTx(ctx, func(ctx context.Context) error {
				products, err := repo.LockByIDs(ctx, []uuid.UUID{product.ID})
				if err != nil {
					return err
				}
				locked := products[product.ID]
				if err := locked.Reserve(6); err != nil {
					return err
				}
				return repo.UpdateQuantities(ctx, locked)
			})
		}()
	}

	var approved, rejected int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			approved++
		case apperrors.Is(err, domain.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, rejected)

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, found.QuantityAvailable)
	assert.Equal(t, 6, found.QuantityReserved)
	assert.Equal(t, 2, found.Version)
}

func TestPostgreSQLProductRepository_Reservations(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Desk Lamp", 10)
	sagaID := uuid.Must(uuid.NewV7())
	orderID := uuid.Must(uuid.NewV7())

	reservation := domain.NewReservation(sagaID, orderID, product.ID, 3)
	require.NoError(t, repo.CreateReservation(ctx, reservation))

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		reservations, err := repo.GetReservationsBySaga(ctx, sagaID)
		require.NoError(t, err)
		require.Len(t, reservations, 1)
		assert.Equal(t, domain.ReservationStatusReserved, reservations[0].Status)
		assert.Equal(t, 3, reservations[0].Quantity)

		require.NoError(t, reservations[0].Confirm())
		return repo.UpdateReservation(ctx, reservations[0])
	})
	require.NoError(t, err)

	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		reservations, err := repo.GetReservationsBySaga(ctx, sagaID)
		require.NoError(t, err)
		require.Len(t, reservations, 1)
		assert.Equal(t, domain.ReservationStatusConfirmed, reservations[0].Status)
		assert.Equal(t, 2, reservations[0].Version)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgreSQLProductRepository_UpdateReservationVersionConflict(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLProductRepository(db)
	ctx := context.Background()

	product := createProduct(t, repo, "Speaker", 10)
	reservation := domain.NewReservation(uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), product.ID, 2)
	require.NoError(t, repo.CreateReservation(ctx, reservation))

	stale := *reservation
	require.NoError(t, reservation.Confirm())
	require.NoError(t, repo.UpdateReservation(ctx, reservation))

	require.NoError(t, stale.Release())
	err := repo.UpdateReservation(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrReservationVersionConflict)
}
