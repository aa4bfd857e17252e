// Package repository provides data persistence implementations for inbox messages.
package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/inbox/domain"
)

// PostgreSQLInboxMessageRepository handles inbox message persistence for PostgreSQL.
type PostgreSQLInboxMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLInboxMessageRepository creates a new PostgreSQLInboxMessageRepository.
func NewPostgreSQLInboxMessageRepository(db *sql.DB) *PostgreSQLInboxMessageRepository {
	return &PostgreSQLInboxMessageRepository{db: db}
}

const inboxColumns = `id, message_id, saga_id, type, payload, status,
	received_at, processed_at, retry_count, error_message, version`

// Create stages a new inbox message. The unique constraint on message_id turns
// a redelivered bus message into ErrDuplicateMessage instead of a second row.
func (r *PostgreSQLInboxMessageRepository) Create(ctx context.Context, msg *domain.InboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO inbox_messages (id, message_id, saga_id, type, payload, status, received_at, retry_count, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, msg.ID, msg.MessageID, msg.SagaID, msg.Type,
		[]byte(msg.Payload), msg.Status, msg.ReceivedAt, msg.RetryCount, msg.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateMessage
		}
		return apperrors.Wrap(err, "failed to create inbox message")
	}
	return nil
}

// ClaimReceived selects the oldest RECEIVED row, skipping rows locked by
// competing processor instances. Must run inside a transaction; the row lock
// is held until the processing transaction ends.
func (r *PostgreSQLInboxMessageRepository) ClaimReceived(ctx context.Context) (*domain.InboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + inboxColumns + `
			  FROM inbox_messages
			  WHERE status = $1
			  ORDER BY received_at ASC
			  LIMIT 1
			  FOR UPDATE SKIP LOCKED`

	var msg domain.InboxMessage
	var payload []byte

	err := querier.QueryRowContext(ctx, query, domain.InboxMessageStatusReceived).Scan(
		&msg.ID, &msg.MessageID, &msg.SagaID, &msg.Type, &payload, &msg.Status,
		&msg.ReceivedAt, &msg.ProcessedAt, &msg.RetryCount, &msg.ErrorMessage, &msg.Version,
	)
	if err != nil {
		if apperrors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInboxMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to claim inbox message")
	}

	msg.Payload = payload
	return &msg, nil
}

// MarkProcessed transitions a message to PROCESSED with an optimistic version check.
func (r *PostgreSQLInboxMessageRepository) MarkProcessed(ctx context.Context, msg *domain.InboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbox_messages
			  SET status = $1, processed_at = NOW(), version = version + 1
			  WHERE id = $2 AND version = $3`

	result, err := querier.ExecContext(ctx, query, domain.InboxMessageStatusProcessed, msg.ID, msg.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark inbox message processed")
	}
	if err := checkVersion(result); err != nil {
		return err
	}
	now := time.Now().UTC()
	msg.Status = domain.InboxMessageStatusProcessed
	msg.ProcessedAt = &now
	msg.Version++
	return nil
}

// MarkFailed transitions a message to FAILED, storing the error text and
// incrementing the retry counter. Called in its own transaction after the
// processing transaction rolled back, so the version check is against the
// pre-attempt version.
func (r *PostgreSQLInboxMessageRepository) MarkFailed(
	ctx context.Context,
	msg *domain.InboxMessage,
	errorMessage string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbox_messages
			  SET status = $1, error_message = $2, retry_count = retry_count + 1, version = version + 1
			  WHERE id = $3 AND version = $4`

	result, err := querier.ExecContext(ctx, query,
		domain.InboxMessageStatusFailed, errorMessage, msg.ID, msg.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark inbox message failed")
	}
	if err := checkVersion(result); err != nil {
		return err
	}
	msg.Status = domain.InboxMessageStatusFailed
	msg.ErrorMessage = &errorMessage
	msg.RetryCount++
	msg.Version++
	return nil
}

// ResetFailed returns FAILED rows below the retry limit to RECEIVED so the
// processor claims them again. Rows at or above the limit stay FAILED for
// manual inspection.
func (r *PostgreSQLInboxMessageRepository) ResetFailed(ctx context.Context, maxRetryCount int) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE inbox_messages
			  SET status = $1, version = version + 1
			  WHERE status = $2 AND retry_count < $3`

	result, err := querier.ExecContext(ctx, query,
		domain.InboxMessageStatusReceived, domain.InboxMessageStatusFailed, maxRetryCount)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reset failed inbox messages")
	}
	return result.RowsAffected()
}

// DeleteTerminal removes up to batchSize PROCESSED rows and retry-exhausted
// FAILED rows.
func (r *PostgreSQLInboxMessageRepository) DeleteTerminal(
	ctx context.Context,
	maxRetryCount int,
	batchSize int,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM inbox_messages
			  WHERE id IN (
				  SELECT id FROM inbox_messages
				  WHERE status = $1 OR (status = $2 AND retry_count >= $3)
				  LIMIT $4
			  )`

	result, err := querier.ExecContext(ctx, query,
		domain.InboxMessageStatusProcessed, domain.InboxMessageStatusFailed, maxRetryCount, batchSize)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete terminal inbox messages")
	}
	return result.RowsAffected()
}

// checkVersion converts a zero-row update into a version conflict error.
func checkVersion(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrInboxVersionConflict
	}
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if apperrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
