// Package usecase implements the inbox processor that applies staged inbound
// messages to the local domain exactly once.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/ordersaga/internal/database"
	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/inbox/domain"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/metrics"
	outboxDomain "github.com/allisson/ordersaga/internal/outbox/domain"
)

// Config holds inbox processor configuration.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	MaxRetryCount int
	RetryInterval time.Duration
}

// InboxMessageRepository defines the inbox persistence operations the
// processor needs.
type InboxMessageRepository interface {
	Create(ctx context.Context, msg *domain.InboxMessage) error
	ClaimReceived(ctx context.Context) (*domain.InboxMessage, error)
	MarkProcessed(ctx context.Context, msg *domain.InboxMessage) error
	MarkFailed(ctx context.Context, msg *domain.InboxMessage, errorMessage string) error
	ResetFailed(ctx context.Context, maxRetryCount int) (int64, error)
}

// OutboxResponseRepository is the slice of the outbox repository used to
// republish an already-produced response when a duplicate request arrives.
type OutboxResponseRepository interface {
	GetBySagaAndType(ctx context.Context, sagaID uuid.UUID, msgType string) (*outboxDomain.OutboxMessage, error)
	Requeue(ctx context.Context, msg *outboxDomain.OutboxMessage) error
}

// MessageHandler applies the domain effect of one staged message. Each service
// implements an exhaustive switch over the message types it consumes. The
// handler runs inside the processing transaction: aggregate mutations and the
// next outbox message commit together with the PROCESSED mark.
type MessageHandler interface {
	Handle(ctx context.Context, msg *domain.InboxMessage) error
}

// ResponseTypeFunc maps an inbound request type to the outbox response types
// that may have been produced for it, in lookup order. An empty slice means
// the type has no stored response to republish on duplicate delivery.
type ResponseTypeFunc func(inboundType string) []string

// Processor polls the inbox table, claims RECEIVED rows and dispatches them to
// the service's MessageHandler. Concurrent instances each claim distinct rows
// via skip-locked reads.
type Processor struct {
	config       Config
	txManager    database.TxManager
	inboxRepo    InboxMessageRepository
	outboxRepo   OutboxResponseRepository
	handler      MessageHandler
	responseType ResponseTypeFunc
	metrics      metrics.BusinessMetrics
	logger       *slog.Logger
}

// NewProcessor creates a new Processor.
func NewProcessor(
	config Config,
	txManager database.TxManager,
	inboxRepo InboxMessageRepository,
	outboxRepo OutboxResponseRepository,
	handler MessageHandler,
	responseType ResponseTypeFunc,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		config:       config,
		txManager:    txManager,
		inboxRepo:    inboxRepo,
		outboxRepo:   outboxRepo,
		handler:      handler,
		responseType: responseType,
		metrics:      businessMetrics,
		logger:       logger,
	}
}

// Start runs the processing loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("starting inbox processor",
		slog.Duration("interval", p.config.PollInterval),
		slog.Int("batch_size", p.config.BatchSize),
	)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping inbox processor")
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("inbox processing cycle failed", slog.Any("error", err))
			}
		}
	}
}

// StartRetrySweep periodically returns retryable FAILED rows to RECEIVED.
func (p *Processor) StartRetrySweep(ctx context.Context) error {
	p.logger.Info("starting inbox retry sweep",
		slog.Duration("interval", p.config.RetryInterval),
		slog.Int("max_retry_count", p.config.MaxRetryCount),
	)

	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping inbox retry sweep")
			return ctx.Err()
		case <-ticker.C:
			reset, err := p.inboxRepo.ResetFailed(ctx, p.config.MaxRetryCount)
			if err != nil {
				p.logger.Error("retry sweep failed", slog.Any("error", err))
				continue
			}
			if reset > 0 {
				p.logger.Info("reset failed inbox messages for retry", slog.Int64("count", reset))
			}
		}
	}
}

// ProcessOnce claims and processes up to the configured batch of messages.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	for i := 0; i < p.config.BatchSize; i++ {
		err := p.processNext(ctx)
		if err == nil {
			continue
		}
		if apperrors.Is(err, domain.ErrInboxMessageNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// processNext claims the oldest RECEIVED row and applies its handler inside
// one transaction. On handler failure the transaction rolls back and a
// follow-up transaction records the FAILED bookkeeping.
func (p *Processor) processNext(ctx context.Context) error {
	var claimed *domain.InboxMessage
	var handlerErr error
	start := time.Now()

	txErr := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		msg, err := p.inboxRepo.ClaimReceived(ctx)
		if err != nil {
			return err
		}
		claimed = msg

		if err := p.handler.Handle(ctx, msg); err != nil {
			if apperrors.Is(err, apperrors.ErrConflict) {
				// A saga step attempted from the wrong state or a duplicate
				// effect: the saga already advanced past this message, so the
				// idempotent outcome is to mark it processed and move on.
				// Handlers load their aggregates with row locks, so a version
				// conflict cannot surface here with a lost transition behind it.
				p.logger.Info("skipping conflicting inbox message",
					slog.String("message_id", msg.MessageID.String()),
					slog.String("type", msg.Type),
					slog.String("reason", err.Error()),
				)
				return p.inboxRepo.MarkProcessed(ctx, msg)
			}
			handlerErr = err
			return err
		}

		return p.inboxRepo.MarkProcessed(ctx, msg)
	})

	if txErr == nil {
		p.record(ctx, "process", "success", start)
		return nil
	}
	if apperrors.Is(txErr, domain.ErrInboxMessageNotFound) {
		return txErr
	}

	p.record(ctx, "process", "error", start)

	// Infrastructure failures before a claim (or on commit) have nothing to
	// mark; the next cycle retries the whole batch.
	if claimed == nil || handlerErr == nil {
		return txErr
	}

	p.logger.Error("failed to process inbox message",
		slog.String("message_id", claimed.MessageID.String()),
		slog.String("type", claimed.Type),
		slog.Int("retry_count", claimed.RetryCount),
		slog.Any("error", handlerErr),
	)

	if markErr := p.inboxRepo.MarkFailed(ctx, claimed, handlerErr.Error()); markErr != nil {
		p.logger.Error("failed to mark inbox message failed",
			slog.String("message_id", claimed.MessageID.String()),
			slog.Any("error", markErr),
		)
	}

	return nil
}

// Ingest stages an inbound envelope. On a duplicate delivery it requeues the
// already-produced outbox response (if any) for republish instead of running
// the side effects again. Implements messaging.Ingestor.
func (p *Processor) Ingest(ctx context.Context, envelope messaging.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	msg := domain.NewInboxMessage(envelope.ID, envelope.SagaID, envelope.Type, payload)

	err = p.inboxRepo.Create(ctx, msg)
	if err == nil {
		return nil
	}
	if !apperrors.Is(err, domain.ErrDuplicateMessage) {
		return err
	}

	p.logger.Info("duplicate message delivery detected",
		slog.String("message_id", envelope.ID.String()),
		slog.String("type", envelope.Type),
	)
	p.record(ctx, "duplicate", "success", time.Now())

	return p.republishResponse(ctx, envelope)
}

// republishResponse looks up the outbox response already enqueued for the
// duplicated request and returns it to the dispatcher's queue.
func (p *Processor) republishResponse(ctx context.Context, envelope messaging.Envelope) error {
	for _, responseType := range p.responseType(envelope.Type) {
		response, err := p.outboxRepo.GetBySagaAndType(ctx, envelope.SagaID, responseType)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return err
		}

		if err := p.outboxRepo.Requeue(ctx, response); err != nil {
			return err
		}

		p.logger.Info("requeued outbox response for duplicate delivery",
			slog.String("saga_id", envelope.SagaID.String()),
			slog.String("response_type", responseType),
		)
		return nil
	}

	// The original delivery has not produced a response yet; the pending
	// inbox row will.
	return nil
}

func (p *Processor) record(ctx context.Context, operation, status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordOperation(ctx, "inbox", operation, status)
	p.metrics.RecordDuration(ctx, "inbox", operation, time.Since(start), status)
}
