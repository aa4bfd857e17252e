package messaging

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// Kafka record headers carrying transport metadata alongside the payload.
const (
	HeaderMessageID = "message_id"
	HeaderType      = "type"
)

// Message is a single keyed record bound for a topic. Key is the saga id so
// all messages of one saga land on the same partition.
type Message struct {
	Topic     string
	Key       string
	MessageID string
	Type      string
	Payload   []byte
}

// Publisher sends messages to the bus. The returned error is the publish
// acknowledgement: nil means the bus accepted the record.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// KafkaPublisher implements Publisher on a sarama synchronous producer.
// SendMessage returns only after the broker acknowledges the record, which is
// the completion signal the outbox dispatcher relies on.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher creates a producer requiring acknowledgement from all
// in-sync replicas.
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create kafka producer")
	}

	return &KafkaPublisher{producer: producer}, nil
}

// Publish sends one record and blocks until the broker acknowledges it.
func (p *KafkaPublisher) Publish(_ context.Context, msg Message) error {
	record := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderMessageID), Value: []byte(msg.MessageID)},
			{Key: []byte(HeaderType), Value: []byte(msg.Type)},
		},
		Timestamp: time.Now(),
	}

	if _, _, err := p.producer.SendMessage(record); err != nil {
		return apperrors.Wrap(err, "failed to publish message")
	}

	return nil
}

// Close releases the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
