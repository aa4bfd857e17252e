package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/ordersaga/internal/database"
	"github.com/allisson/ordersaga/internal/outbox/domain"
	"github.com/allisson/ordersaga/internal/testutil"
)

func createOutboxMessage(t *testing.T, repo *PostgreSQLOutboxMessageRepository, sagaID uuid.UUID, msgType string) *domain.OutboxMessage {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"type": msgType})
	require.NoError(t, err)

	msg := domain.NewOutboxMessage(sagaID, "product-reservation-request", msgType, payload)
	require.NoError(t, repo.Create(context.Background(), msg))
	return msg
}

func TestPostgreSQLOutboxMessageRepository_ClaimStarted(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	first := createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")
	second := createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")

	var claimed []*domain.OutboxMessage
	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = repo.ClaimStarted(ctx, 10)
		return err
	})
	require.NoError(t, err)

	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
	for _, msg := range claimed {
		assert.Equal(t, domain.OutboxMessageStatusProcessing, msg.Status)
		assert.Equal(t, 2, msg.Version)
		assert.NotNil(t, msg.FetchedAt)
	}

	// A second claim finds nothing pending.
	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		again, err := repo.ClaimStarted(ctx, 10)
		assert.Empty(t, again)
		return err
	})
	require.NoError(t, err)
}

func TestPostgreSQLOutboxMessageRepository_MarkCompletedAndFailed(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")
	createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")

	var claimed []*domain.OutboxMessage
	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = repo.ClaimStarted(ctx, 10)
		return err
	})
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	require.NoError(t, repo.MarkCompleted(ctx, claimed[0]))
	assert.Equal(t, domain.OutboxMessageStatusCompleted, claimed[0].Status)
	assert.NotNil(t, claimed[0].ProcessedAt)

	require.NoError(t, repo.MarkFailed(ctx, claimed[1]))
	assert.Equal(t, domain.OutboxMessageStatusFailed, claimed[1].Status)

	// A stale version cannot transition the row again.
	claimed[0].Version = 1
	err = repo.MarkCompleted(ctx, claimed[0])
	assert.ErrorIs(t, err, domain.ErrOutboxVersionConflict)
}

func TestPostgreSQLOutboxMessageRepository_RecoverStuck(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	msg := createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		_, err := repo.ClaimStarted(ctx, 10)
		return err
	})
	require.NoError(t, err)

	// Backdate the claim beyond the recovery threshold.
	_, err = db.Exec("UPDATE outbox_messages SET fetched_at = NOW() - INTERVAL '10 minutes' WHERE id = $1", msg.ID)
	require.NoError(t, err)

	recovered, err := repo.RecoverStuck(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	// The row is claimable again.
	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimStarted(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, claimed, 1)
		return nil
	})
	require.NoError(t, err)

	// A fresh claim is left alone.
	recovered, err = repo.RecoverStuck(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestPostgreSQLOutboxMessageRepository_GetBySagaAndTypeAndRequeue(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	sagaID := uuid.Must(uuid.NewV7())
	createOutboxMessage(t, repo, sagaID, "reservation.approved")

	_, err := repo.GetBySagaAndType(ctx, sagaID, "reservation.rejected")
	assert.ErrorIs(t, err, domain.ErrOutboxMessageNotFound)

	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimStarted(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		return repo.MarkCompleted(ctx, claimed[0])
	})
	require.NoError(t, err)

	stored, err := repo.GetBySagaAndType(ctx, sagaID, "reservation.approved")
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxMessageStatusCompleted, stored.Status)

	require.NoError(t, repo.Requeue(ctx, stored))

	requeued, err := repo.GetBySagaAndType(ctx, sagaID, "reservation.approved")
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxMessageStatusStarted, requeued.Status)
	assert.Nil(t, requeued.FetchedAt)
	assert.Nil(t, requeued.ProcessedAt)
}

func TestPostgreSQLOutboxMessageRepository_DeleteTerminal(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOutboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")
	createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")
	pending := createOutboxMessage(t, repo, uuid.Must(uuid.NewV7()), "reservation.requested")

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimStarted(ctx, 2)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		require.NoError(t, repo.MarkCompleted(ctx, claimed[0]))
		return repo.MarkFailed(ctx, claimed[1])
	})
	require.NoError(t, err)

	deleted, err := repo.DeleteTerminal(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// The pending row survives.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM outbox_messages WHERE id = $1", pending.ID).Scan(&count))
	assert.Equal(t, 1, count)
}
