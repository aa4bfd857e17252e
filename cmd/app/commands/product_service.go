package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/ordersaga/internal/app"
	"github.com/allisson/ordersaga/internal/config"
)

// RunProductService starts the product service: the saga workers that reserve,
// confirm and release product stock.
func RunProductService(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting product service", slog.String("version", version))

	defer closeContainer(container, logger)

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	consumer, err := container.ProductConsumer()
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	processor, err := container.ProductProcessor()
	if err != nil {
		return fmt.Errorf("failed to initialize inbox processor: %w", err)
	}
	dispatcher, err := container.Dispatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox dispatcher: %w", err)
	}
	cleaner, err := container.Cleaner()
	if err != nil {
		return fmt.Errorf("failed to initialize cleaner: %w", err)
	}

	return runService(ctx, serviceParts{
		name:          "product",
		metricsServer: metricsServer,
		consumer:      consumer,
		processor:     processor,
		dispatcher:    dispatcher,
		cleaner:       cleaner,
		logger:        logger,
	})
}
