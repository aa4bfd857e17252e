package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// Ingestor stages an inbound envelope durably before any business logic runs.
// Implementations must be idempotent with respect to the envelope id.
type Ingestor interface {
	Ingest(ctx context.Context, envelope Envelope) error
}

// Consumer reads saga topics through a Kafka consumer group and hands each
// envelope to the Ingestor. Offsets are committed only after the envelope is
// durably staged, so a crash before the inbox insert results in redelivery.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler sarama.ConsumerGroupHandler
	logger  *slog.Logger
}

// NewConsumer creates a consumer group with manual offset commits.
func NewConsumer(
	brokers []string,
	groupID string,
	topics []string,
	ingestor Ingestor,
	logger *slog.Logger,
) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRange(),
	}

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create consumer group")
	}

	return &Consumer{
		group:  group,
		topics: topics,
		handler: &ingestHandler{
			ingestor: ingestor,
			logger:   logger,
		},
		logger: logger,
	}, nil
}

// Start runs the consume loop until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", slog.Any("error", err))
		}
	}()

	for {
		if err := c.group.Consume(ctx, c.topics, c.handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("consume loop error", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close shuts the consumer group down.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// ingestHandler stages every record into the inbox and commits offsets only
// after a durable insert.
type ingestHandler struct {
	ingestor Ingestor
	logger   *slog.Logger
}

func (h *ingestHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *ingestHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *ingestHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for record := range claim.Messages() {
		var envelope Envelope
		if err := json.Unmarshal(record.Value, &envelope); err != nil {
			// A record that does not decode into an envelope can never be
			// staged; skip it and keep the partition moving.
			h.logger.Error("failed to decode envelope, skipping record",
				slog.String("topic", record.Topic),
				slog.Int64("offset", record.Offset),
				slog.Any("error", err),
			)
			session.MarkMessage(record, "")
			session.Commit()
			continue
		}

		if err := h.ingestWithRetry(session.Context(), envelope); err != nil {
			// Context cancelled mid-retry; offset is not committed so the
			// record is redelivered after rebalance.
			return err
		}

		session.MarkMessage(record, "")
		session.Commit()
	}
	return nil
}

// ingestWithRetry keeps trying to stage the envelope until the store accepts
// it or the session ends. Duplicate envelopes are handled inside Ingest.
func (h *ingestHandler) ingestWithRetry(ctx context.Context, envelope Envelope) error {
	for {
		err := h.ingestor.Ingest(ctx, envelope)
		if err == nil {
			return nil
		}

		h.logger.Error("failed to ingest envelope, retrying",
			slog.String("message_id", envelope.ID.String()),
			slog.String("type", envelope.Type),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), "ingest interrupted")
		case <-time.After(time.Second):
		}
	}
}
