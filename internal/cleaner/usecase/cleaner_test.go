package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOutboxCleanerRepository struct {
	mock.Mock
}

func (m *mockOutboxCleanerRepository) DeleteTerminal(ctx context.Context, batchSize int) (int64, error) {
	args := m.Called(ctx, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

type mockInboxCleanerRepository struct {
	mock.Mock
}

func (m *mockInboxCleanerRepository) DeleteTerminal(
	ctx context.Context,
	maxRetryCount int,
	batchSize int,
) (int64, error) {
	args := m.Called(ctx, maxRetryCount, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func newTestCleaner(outboxRepo *mockOutboxCleanerRepository, inboxRepo *mockInboxCleanerRepository) *Cleaner {
	config := Config{
		Interval:      time.Minute,
		BatchSize:     100,
		MaxRetryCount: 3,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCleaner(config, outboxRepo, inboxRepo, logger)
}

func TestCleaner_CleanOnce(t *testing.T) {
	t.Run("drains both staging tables", func(t *testing.T) {
		outboxRepo := &mockOutboxCleanerRepository{}
		outboxRepo.On("DeleteTerminal", mock.Anything, 100).Return(int64(10), nil)

		inboxRepo := &mockInboxCleanerRepository{}
		inboxRepo.On("DeleteTerminal", mock.Anything, 3, 100).Return(int64(4), nil)

		cleaner := newTestCleaner(outboxRepo, inboxRepo)
		err := cleaner.CleanOnce(context.Background())

		require.NoError(t, err)
		outboxRepo.AssertExpectations(t)
		inboxRepo.AssertExpectations(t)
	})

	t.Run("repeats full batches until the backlog is drained", func(t *testing.T) {
		outboxRepo := &mockOutboxCleanerRepository{}
		outboxRepo.On("DeleteTerminal", mock.Anything, 100).Return(int64(100), nil).Twice()
		outboxRepo.On("DeleteTerminal", mock.Anything, 100).Return(int64(30), nil).Once()

		inboxRepo := &mockInboxCleanerRepository{}
		inboxRepo.On("DeleteTerminal", mock.Anything, 3, 100).Return(int64(0), nil).Once()

		cleaner := newTestCleaner(outboxRepo, inboxRepo)
		err := cleaner.CleanOnce(context.Background())

		require.NoError(t, err)
		outboxRepo.AssertNumberOfCalls(t, "DeleteTerminal", 3)
		inboxRepo.AssertNumberOfCalls(t, "DeleteTerminal", 1)
	})

	t.Run("stops the run when the outbox delete fails", func(t *testing.T) {
		outboxRepo := &mockOutboxCleanerRepository{}
		outboxRepo.On("DeleteTerminal", mock.Anything, 100).Return(int64(0), errors.New("database down"))

		inboxRepo := &mockInboxCleanerRepository{}

		cleaner := newTestCleaner(outboxRepo, inboxRepo)
		err := cleaner.CleanOnce(context.Background())

		assert.Error(t, err)
		inboxRepo.AssertNotCalled(t, "DeleteTerminal", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stops draining on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		outboxRepo := &mockOutboxCleanerRepository{}
		inboxRepo := &mockInboxCleanerRepository{}

		cleaner := newTestCleaner(outboxRepo, inboxRepo)
		err := cleaner.CleanOnce(ctx)

		assert.ErrorIs(t, err, context.Canceled)
		outboxRepo.AssertNotCalled(t, "DeleteTerminal", mock.Anything, mock.Anything)
	})
}
