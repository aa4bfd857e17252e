package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/ordersaga/internal/database"
	"github.com/allisson/ordersaga/internal/inbox/domain"
	"github.com/allisson/ordersaga/internal/testutil"
)

func createInboxMessage(t *testing.T, repo *PostgreSQLInboxMessageRepository) *domain.InboxMessage {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"type": "reservation.requested"})
	require.NoError(t, err)

	msg := domain.NewInboxMessage(uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()),
		"reservation.requested", payload)
	require.NoError(t, repo.Create(context.Background(), msg))
	return msg
}

func TestPostgreSQLInboxMessageRepository_CreateDuplicate(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	ctx := context.Background()

	msg := createInboxMessage(t, repo)

	// Same message id arrives again.
	duplicate := domain.NewInboxMessage(msg.MessageID, msg.SagaID, msg.Type, msg.Payload)
	err := repo.Create(ctx, duplicate)
	assert.ErrorIs(t, err, domain.ErrDuplicateMessage)
}

func TestPostgreSQLInboxMessageRepository_ClaimReceived(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	first := createInboxMessage(t, repo)
	createInboxMessage(t, repo)

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimReceived(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.MessageID, claimed.MessageID)
		return repo.MarkProcessed(ctx, claimed)
	})
	require.NoError(t, err)

	// Processed rows are not claimable again.
	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimReceived(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, first.MessageID, claimed.MessageID)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgreSQLInboxMessageRepository_ClaimReceivedEmpty(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	txManager := database.NewTxManager(db)

	err := txManager.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.ClaimReceived(ctx)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInboxMessageNotFound)
}

func TestPostgreSQLInboxMessageRepository_MarkFailedAndResetFailed(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	createInboxMessage(t, repo)

	var claimed *domain.InboxMessage
	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = repo.ClaimReceived(ctx)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, claimed, "order not found"))
	assert.Equal(t, domain.InboxMessageStatusFailed, claimed.Status)
	assert.Equal(t, 1, claimed.RetryCount)
	require.NotNil(t, claimed.ErrorMessage)
	assert.Equal(t, "order not found", *claimed.ErrorMessage)

	// Below the retry limit the row is returned to RECEIVED.
	reset, err := repo.ResetFailed(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	err = txManager.WithTx(ctx, func(ctx context.Context) error {
		again, err := repo.ClaimReceived(ctx)
		require.NoError(t, err)
		assert.Equal(t, claimed.MessageID, again.MessageID)
		assert.Equal(t, 1, again.RetryCount)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgreSQLInboxMessageRepository_ResetFailedRespectsRetryLimit(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	ctx := context.Background()

	msg := createInboxMessage(t, repo)

	_, err := db.Exec("UPDATE inbox_messages SET status = $1, retry_count = 3 WHERE id = $2",
		domain.InboxMessageStatusFailed, msg.ID)
	require.NoError(t, err)

	reset, err := repo.ResetFailed(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, reset)
}

func TestPostgreSQLInboxMessageRepository_DeleteTerminal(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLInboxMessageRepository(db)
	txManager := database.NewTxManager(db)
	ctx := context.Background()

	createInboxMessage(t, repo)
	exhausted := createInboxMessage(t, repo)
	retryable := createInboxMessage(t, repo)

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := repo.ClaimReceived(ctx)
		require.NoError(t, err)
		return repo.MarkProcessed(ctx, claimed)
	})
	require.NoError(t, err)

	_, err = db.Exec("UPDATE inbox_messages SET status = $1, retry_count = 3 WHERE id = $2",
		domain.InboxMessageStatusFailed, exhausted.ID)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE inbox_messages SET status = $1, retry_count = 1 WHERE id = $2",
		domain.InboxMessageStatusFailed, retryable.ID)
	require.NoError(t, err)

	// PROCESSED rows and FAILED rows past the retry limit are removed;
	// retryable failures stay.
	deleted, err := repo.DeleteTerminal(ctx, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM inbox_messages").Scan(&count))
	assert.Equal(t, 1, count)
}
