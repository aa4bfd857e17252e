// Package usecase implements the cleaner that bounds outbox and inbox table
// growth by deleting terminal rows.
package usecase

import (
	"context"
	"log/slog"
	"time"
)

// Config holds cleaner configuration.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetryCount int
}

// OutboxCleanerRepository deletes terminal outbox rows in bounded batches.
type OutboxCleanerRepository interface {
	DeleteTerminal(ctx context.Context, batchSize int) (int64, error)
}

// InboxCleanerRepository deletes processed and retry-exhausted inbox rows in
// bounded batches.
type InboxCleanerRepository interface {
	DeleteTerminal(ctx context.Context, maxRetryCount int, batchSize int) (int64, error)
}

// Cleaner periodically drains terminal outbox and inbox rows. Each run loops
// until a batch deletes fewer rows than the batch size, so a backlog is
// cleared in bounded chunks without one long-running statement.
type Cleaner struct {
	config     Config
	outboxRepo OutboxCleanerRepository
	inboxRepo  InboxCleanerRepository
	logger     *slog.Logger
}

// NewCleaner creates a new Cleaner.
func NewCleaner(
	config Config,
	outboxRepo OutboxCleanerRepository,
	inboxRepo InboxCleanerRepository,
	logger *slog.Logger,
) *Cleaner {
	return &Cleaner{
		config:     config,
		outboxRepo: outboxRepo,
		inboxRepo:  inboxRepo,
		logger:     logger,
	}
}

// Start runs the cleanup loop until the context is cancelled.
func (c *Cleaner) Start(ctx context.Context) error {
	c.logger.Info("starting cleaner",
		slog.Duration("interval", c.config.Interval),
		slog.Int("batch_size", c.config.BatchSize),
	)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping cleaner")
			return ctx.Err()
		case <-ticker.C:
			if err := c.CleanOnce(ctx); err != nil {
				c.logger.Error("cleanup run failed", slog.Any("error", err))
			}
		}
	}
}

// CleanOnce drains terminal rows from both staging tables.
func (c *Cleaner) CleanOnce(ctx context.Context) error {
	outboxDeleted, err := c.drain(ctx, func(ctx context.Context) (int64, error) {
		return c.outboxRepo.DeleteTerminal(ctx, c.config.BatchSize)
	})
	if err != nil {
		return err
	}

	inboxDeleted, err := c.drain(ctx, func(ctx context.Context) (int64, error) {
		return c.inboxRepo.DeleteTerminal(ctx, c.config.MaxRetryCount, c.config.BatchSize)
	})
	if err != nil {
		return err
	}

	if outboxDeleted > 0 || inboxDeleted > 0 {
		c.logger.Info("cleanup run finished",
			slog.Int64("outbox_deleted", outboxDeleted),
			slog.Int64("inbox_deleted", inboxDeleted),
		)
	}
	return nil
}

// drain repeats the delete until a batch comes back smaller than the batch
// size or the context ends.
func (c *Cleaner) drain(ctx context.Context, deleteBatch func(ctx context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		deleted, err := deleteBatch(ctx)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < int64(c.config.BatchSize) {
			return total, nil
		}
	}
}
