package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/allisson/ordersaga/internal/app"
	"github.com/allisson/ordersaga/internal/config"
)

// RunOrderService starts the order service: the HTTP API that accepts orders
// plus the saga workers that react to reservation and payment outcomes.
func RunOrderService(ctx context.Context, version string) error {
	cfg := config.Load()
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting order service", slog.String("version", version))

	defer closeContainer(container, logger)

	httpServer, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	consumer, err := container.OrderConsumer()
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	processor, err := container.OrderProcessor()
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
		name:          "order",
		httpServer:    httpServer,
		metricsServer: metricsServer,
		consumer:      consumer,
		processor:     processor,
		dispatcher:    dispatcher,
		cleaner:       cleaner,
		logger:        logger,
	})
}
