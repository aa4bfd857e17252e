// Package usecase implements the outbox dispatcher that relays staged
// messages to the bus.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/ordersaga/internal/database"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/metrics"
	"github.com/allisson/ordersaga/internal/outbox/domain"
)

// Config holds dispatcher configuration.
type Config struct {
	Interval          time.Duration
	BatchSize         int
	ProcessingTimeout time.Duration
}

// OutboxMessageRepository defines the outbox persistence operations the
// dispatcher needs.
type OutboxMessageRepository interface {
	ClaimStarted(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	MarkCompleted(ctx context.Context, msg *domain.OutboxMessage) error
	MarkFailed(ctx context.Context, msg *domain.OutboxMessage) error
}

// Dispatcher polls the outbox table, claims STARTED rows and publishes them.
// Multiple dispatcher instances partition the pending work through skip-locked
// claims; a crash between claim and publish is healed by timeout recovery, so
// delivery is at-least-once and consumers must de-duplicate.
type Dispatcher struct {
	config     Config
	txManager  database.TxManager
	outboxRepo OutboxMessageRepository
	publisher  messaging.Publisher
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxMessageRepository,
	publisher messaging.Publisher,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		config:     config,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		publisher:  publisher,
		metrics:    businessMetrics,
		logger:     logger,
	}
}

// Start runs the dispatch loop until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting outbox dispatcher",
		slog.Duration("interval", d.config.Interval),
		slog.Int("batch_size", d.config.BatchSize),
	)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("stopping outbox dispatcher")
			return ctx.Err()
		case <-ticker.C:
			if err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("dispatch cycle failed", slog.Any("error", err))
			}
		}
	}
}

// DispatchOnce executes one dispatch cycle: recover stuck claims, claim a
// batch of STARTED rows, publish them and record the outcome.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	recovered, err := d.outboxRepo.RecoverStuck(ctx, d.config.ProcessingTimeout)
	if err != nil {
		return err
	}
	if recovered > 0 {
		d.logger.Warn("recovered stuck outbox messages", slog.Int64("count", recovered))
	}

	var claimed []*domain.OutboxMessage
	err = d.txManager.WithTx(ctx, func(ctx context.Context) error {
		var claimErr error
		claimed, claimErr = d.outboxRepo.ClaimStarted(ctx, d.config.BatchSize)
		return claimErr
	})
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	d.logger.Info("dispatching outbox messages", slog.Int("count", len(claimed)))

	for _, msg := range claimed {
		d.publishOne(ctx, msg)
	}

	return nil
}

// publishOne sends one claimed message and marks it COMPLETED or FAILED. The
// publish acknowledgement is the sole source of truth for the terminal status.
func (d *Dispatcher) publishOne(ctx context.Context, msg *domain.OutboxMessage) {
	start := time.Now()

	err := d.publisher.Publish(ctx, messaging.Message{
		Topic:     msg.Topic,
		Key:       msg.SagaID.String(),
		MessageID: msg.MessageID.String(),
		Type:      msg.Type,
		Payload:   msg.Payload,
	})

	if d.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		d.metrics.RecordOperation(ctx, "outbox", "publish", status)
		d.metrics.RecordDuration(ctx, "outbox", "publish", time.Since(start), status)
	}

	if err != nil {
		d.logger.Error("failed to publish outbox message",
			slog.String("message_id", msg.MessageID.String()),
			slog.String("type", msg.Type),
			slog.Any("error", err),
		)
		// FAILED is terminal here: retrying the publish could re-emit a
		// message whose business effect the saga already compensated.
		if markErr := d.outboxRepo.MarkFailed(ctx, msg); markErr != nil {
			d.logger.Error("failed to mark outbox message failed",
				slog.String("message_id", msg.MessageID.String()),
				slog.Any("error", markErr),
			)
		}
		return
	}

	if markErr := d.outboxRepo.MarkCompleted(ctx, msg); markErr != nil {
		// The row stays PROCESSING and is reset by timeout recovery, causing
		// one more publish. Consumers de-duplicate on message id.
		d.logger.Error("failed to mark outbox message completed",
			slog.String("message_id", msg.MessageID.String()),
			slog.Any("error", markErr),
		)
	}
}
