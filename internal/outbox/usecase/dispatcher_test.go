package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/outbox/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockOutboxRepository struct {
	mock.Mock
}

func (m *mockOutboxRepository) ClaimStarted(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	if msgs := args.Get(0); msgs != nil {
		return msgs.([]*domain.OutboxMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOutboxRepository) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOutboxRepository) MarkCompleted(ctx context.Context, msg *domain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepository) MarkFailed(ctx context.Context, msg *domain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock

	published []messaging.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil {
		m.published = append(m.published, msg)
	}
	return args.Error(0)
}

type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestDispatcher(repo *mockOutboxRepository, publisher *mockPublisher) *Dispatcher {
	config := Config{
		Interval:          time.Second,
		BatchSize:         10,
		ProcessingTimeout: 5 * time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(config, &fakeTxManager{}, repo, publisher, nil, logger)
}

func newTestOutboxMessage(t *testing.T) *domain.OutboxMessage {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"type": "reservation.requested"})
	require.NoError(t, err)
	return domain.NewOutboxMessage(uuid.Must(uuid.NewV7()),
		"product-reservation-request", "reservation.requested", payload)
}

func TestDispatcher_DispatchOnce(t *testing.T) {
	t.Run("publishes claimed messages and marks them completed", func(t *testing.T) {
		msg := newTestOutboxMessage(t)

		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, 5*time.Minute).Return(int64(0), nil)
		repo.On("ClaimStarted", mock.Anything, 10).Return([]*domain.OutboxMessage{msg}, nil)
		repo.On("MarkCompleted", mock.Anything, msg).Return(nil)

		publisher := &mockPublisher{}
		publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

		dispatcher := newTestDispatcher(repo, publisher)
		err := dispatcher.DispatchOnce(context.Background())

		require.NoError(t, err)
		repo.AssertExpectations(t)
		require.Len(t, publisher.published, 1)
		assert.Equal(t, msg.Topic, publisher.published[0].Topic)
		assert.Equal(t, msg.SagaID.String(), publisher.published[0].Key)
		assert.Equal(t, msg.MessageID.String(), publisher.published[0].MessageID)
		assert.Equal(t, msg.Type, publisher.published[0].Type)
	})

	t.Run("marks message failed when publish is rejected", func(t *testing.T) {
		msg := newTestOutboxMessage(t)

		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, mock.Anything).Return(int64(0), nil)
		repo.On("ClaimStarted", mock.Anything, 10).Return([]*domain.OutboxMessage{msg}, nil)
		repo.On("MarkFailed", mock.Anything, msg).Return(nil)

		publisher := &mockPublisher{}
		publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))

		dispatcher := newTestDispatcher(repo, publisher)
		err := dispatcher.DispatchOnce(context.Background())

		require.NoError(t, err)
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
	})

	t.Run("continues batch after one publish failure", func(t *testing.T) {
		bad := newTestOutboxMessage(t)
		good := newTestOutboxMessage(t)

		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, mock.Anything).Return(int64(0), nil)
		repo.On("ClaimStarted", mock.Anything, 10).Return([]*domain.OutboxMessage{bad, good}, nil)
		repo.On("MarkFailed", mock.Anything, bad).Return(nil)
		repo.On("MarkCompleted", mock.Anything, good).Return(nil)

		publisher := &mockPublisher{}
		publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m messaging.Message) bool {
			return m.MessageID == bad.MessageID.String()
		})).Return(errors.New("broker unavailable"))
		publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m messaging.Message) bool {
			return m.MessageID == good.MessageID.String()
		})).Return(nil)

		dispatcher := newTestDispatcher(repo, publisher)
		err := dispatcher.DispatchOnce(context.Background())

		require.NoError(t, err)
		repo.AssertExpectations(t)
		require.Len(t, publisher.published, 1)
		assert.Equal(t, good.MessageID.String(), publisher.published[0].MessageID)
	})

	t.Run("skips publishing when nothing is claimed", func(t *testing.T) {
		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, mock.Anything).Return(int64(0), nil)
		repo.On("ClaimStarted", mock.Anything, 10).Return([]*domain.OutboxMessage{}, nil)

		publisher := &mockPublisher{}

		dispatcher := newTestDispatcher(repo, publisher)
		err := dispatcher.DispatchOnce(context.Background())

		require.NoError(t, err)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("recovers stuck claims before claiming", func(t *testing.T) {
		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, 5*time.Minute).Return(int64(2), nil)
		repo.On("ClaimStarted", mock.Anything, 10).Return([]*domain.OutboxMessage{}, nil)

		dispatcher := newTestDispatcher(repo, &mockPublisher{})
		err := dispatcher.DispatchOnce(context.Background())

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("returns error when recovery fails", func(t *testing.T) {
		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, mock.Anything).Return(int64(0), errors.New("database down"))

		dispatcher := newTestDispatcher(repo, &mockPublisher{})
		err := dispatcher.DispatchOnce(context.Background())

		assert.Error(t, err)
		repo.AssertNotCalled(t, "ClaimStarted", mock.Anything, mock.Anything)
	})
}

func TestDispatcher_Start(t *testing.T) {
	t.Run("stops when the context is cancelled", func(t *testing.T) {
		repo := &mockOutboxRepository{}
		repo.On("RecoverStuck", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
		repo.On("ClaimStarted", mock.Anything, mock.Anything).Return([]*domain.OutboxMessage{}, nil).Maybe()

		dispatcher := newTestDispatcher(repo, &mockPublisher{})
		dispatcher.config.Interval = 10 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- dispatcher.Start(ctx)
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop after cancellation")
		}
	})
}
