// Package repository provides data persistence implementations for outbox messages.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/outbox/domain"
)

// PostgreSQLOutboxMessageRepository handles outbox message persistence for PostgreSQL.
type PostgreSQLOutboxMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxMessageRepository creates a new PostgreSQLOutboxMessageRepository.
func NewPostgreSQLOutboxMessageRepository(db *sql.DB) *PostgreSQLOutboxMessageRepository {
	return &PostgreSQLOutboxMessageRepository{db: db}
}

const outboxColumns = `id, saga_id, message_id, topic, type, payload, status,
	created_at, fetched_at, processed_at, version`

// Create inserts a new outbox message inside the caller's transaction.
func (r *PostgreSQLOutboxMessageRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (id, saga_id, message_id, topic, type, payload, status, created_at, version)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, msg.ID, msg.SagaID, msg.MessageID, msg.Topic,
		msg.Type, []byte(msg.Payload), msg.Status, msg.CreatedAt, msg.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox message")
	}
	return nil
}

// ClaimStarted selects up to limit STARTED rows ordered by creation time,
// skipping rows locked by competing dispatcher instances, and transitions them
// to PROCESSING. Must run inside a transaction so the row locks are held until
// the bulk update commits.
func (r *PostgreSQLOutboxMessageRepository) ClaimStarted(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + `
			  FROM outbox_messages
			  WHERE status = $1
			  ORDER BY created_at ASC
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxMessageStatusStarted, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select started outbox messages")
	}

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID.String()
	}

	update := `UPDATE outbox_messages
			   SET status = $1, fetched_at = NOW(), version = version + 1
			   WHERE id = ANY($2)`

	if _, err := querier.ExecContext(ctx, update, domain.OutboxMessageStatusProcessing, pq.Array(ids)); err != nil {
		return nil, apperrors.Wrap(err, "failed to mark outbox messages processing")
	}

	now := time.Now().UTC()
	for _, msg := range messages {
		msg.Status = domain.OutboxMessageStatusProcessing
		msg.FetchedAt = &now
		msg.Version++
	}

	return messages, nil
}

// RecoverStuck resets PROCESSING rows whose claim is older than the threshold
// back to STARTED. Guards against dispatchers that crashed between claiming
// and publishing.
func (r *PostgreSQLOutboxMessageRepository) RecoverStuck(
	ctx context.Context,
	olderThan time.Duration,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = $1, fetched_at = NULL, version = version + 1
			  WHERE status = $2 AND fetched_at < NOW() - make_interval(secs => $3)`

	result, err := querier.ExecContext(ctx, query,
		domain.OutboxMessageStatusStarted,
		domain.OutboxMessageStatusProcessing,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to recover stuck outbox messages")
	}

	return result.RowsAffected()
}

// MarkCompleted transitions a PROCESSING row to COMPLETED with an optimistic
// version check.
func (r *PostgreSQLOutboxMessageRepository) MarkCompleted(ctx context.Context, msg *domain.OutboxMessage) error {
	return r.transition(ctx, msg, domain.OutboxMessageStatusCompleted)
}

// MarkFailed transitions a PROCESSING row to FAILED. FAILED is terminal for
// the dispatcher; recovery for business-meaningful failures belongs to the
// saga's compensation path.
func (r *PostgreSQLOutboxMessageRepository) MarkFailed(ctx context.Context, msg *domain.OutboxMessage) error {
	return r.transition(ctx, msg, domain.OutboxMessageStatusFailed)
}

func (r *PostgreSQLOutboxMessageRepository) transition(
	ctx context.Context,
	msg *domain.OutboxMessage,
	status domain.OutboxMessageStatus,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = $1, processed_at = NOW(), version = version + 1
			  WHERE id = $2 AND version = $3`

	result, err := querier.ExecContext(ctx, query, status, msg.ID, msg.Version)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox message status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return domain.ErrOutboxVersionConflict
	}

	msg.Status = status
	msg.Version++
	now := time.Now().UTC()
	msg.ProcessedAt = &now
	return nil
}

// GetBySagaAndType returns the most recent outbox message for a saga and
// message type. Used by the duplicate-delivery republish path.
func (r *PostgreSQLOutboxMessageRepository) GetBySagaAndType(
	ctx context.Context,
	sagaID uuid.UUID,
	msgType string,
) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + `
			  FROM outbox_messages
			  WHERE saga_id = $1 AND type = $2
			  ORDER BY created_at DESC
			  LIMIT 1`

	rows, err := querier.QueryContext(ctx, query, sagaID, msgType)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get outbox message by saga and type")
	}

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, domain.ErrOutboxMessageNotFound
	}

	return messages[0], nil
}

// Requeue returns a COMPLETED message to STARTED so the dispatcher republishes
// it. A no-op when the row is not COMPLETED (already pending or in flight).
func (r *PostgreSQLOutboxMessageRepository) Requeue(ctx context.Context, msg *domain.OutboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET status = $1, fetched_at = NULL, processed_at = NULL, version = version + 1
			  WHERE id = $2 AND status = $3`

	_, err := querier.ExecContext(ctx, query,
		domain.OutboxMessageStatusStarted, msg.ID, domain.OutboxMessageStatusCompleted)
	if err != nil {
		return apperrors.Wrap(err, "failed to requeue outbox message")
	}
	return nil
}

// DeleteTerminal removes up to batchSize COMPLETED and FAILED rows. Returns
// the number of deleted rows so the cleaner can loop until the table is
// drained.
func (r *PostgreSQLOutboxMessageRepository) DeleteTerminal(ctx context.Context, batchSize int) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_messages
			  WHERE id IN (
				  SELECT id FROM outbox_messages
				  WHERE status = ANY($1)
				  LIMIT $2
			  )`

	statuses := pq.Array([]string{
		string(domain.OutboxMessageStatusCompleted),
		string(domain.OutboxMessageStatusFailed),
	})

	result, err := querier.ExecContext(ctx, query, statuses, batchSize)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete terminal outbox messages")
	}

	return result.RowsAffected()
}

func scanOutboxMessages(rows *sql.Rows) ([]*domain.OutboxMessage, error) {
	defer rows.Close() //nolint:errcheck

	var messages []*domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		var payload []byte

		err := rows.Scan(&msg.ID, &msg.SagaID, &msg.MessageID, &msg.Topic, &msg.Type, &payload,
			&msg.Status, &msg.CreatedAt, &msg.FetchedAt, &msg.ProcessedAt, &msg.Version)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox message")
		}

		msg.Payload = payload
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox messages")
	}

	return messages, nil
}
