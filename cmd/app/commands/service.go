package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cleanerUsecase "github.com/allisson/ordersaga/internal/cleaner/usecase"
	"github.com/allisson/ordersaga/internal/http"
	inboxUsecase "github.com/allisson/ordersaga/internal/inbox/usecase"
	"github.com/allisson/ordersaga/internal/messaging"
	outboxUsecase "github.com/allisson/ordersaga/internal/outbox/usecase"
)

const shutdownTimeout = 30 * time.Second

// serviceParts holds the workers and servers one saga service runs. The
// httpServer and metricsServer are optional.
type serviceParts struct {
	name          string
	httpServer    *http.Server
	metricsServer *http.MetricsServer
	consumer      *messaging.Consumer
	processor     *inboxUsecase.Processor
	dispatcher    *outboxUsecase.Dispatcher
	cleaner       *cleanerUsecase.Cleaner
	logger        *slog.Logger
}

// runService starts every worker of one service and blocks until a shutdown
// signal arrives or a worker fails. All workers share one context, so a single
// failure drains the whole process and the orchestrator restarts it.
func runService(ctx context.Context, parts serviceParts) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	parts.logger.Info("starting service", slog.String("service", parts.name))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return parts.consumer.Start(ctx)
	})
	group.Go(func() error {
		return ignoreCancellation(parts.processor.Start(ctx))
	})
	group.Go(func() error {
		return ignoreCancellation(parts.processor.StartRetrySweep(ctx))
	})
	group.Go(func() error {
		return ignoreCancellation(parts.dispatcher.Start(ctx))
	})
	group.Go(func() error {
		return ignoreCancellation(parts.cleaner.Start(ctx))
	})

	if parts.httpServer != nil {
		group.Go(func() error {
			return parts.httpServer.Start(ctx)
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return parts.httpServer.Shutdown(shutdownCtx)
		})
	}

	if parts.metricsServer != nil {
		group.Go(func() error {
			return parts.metricsServer.Start(ctx)
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return parts.metricsServer.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	parts.logger.Info("service stopped", slog.String("service", parts.name))
	return ignoreCancellation(err)
}

// ignoreCancellation filters the context error a worker returns on a clean
// shutdown so it is not reported as a failure.
func ignoreCancellation(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
