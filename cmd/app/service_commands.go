package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/ordersaga/cmd/app/commands"
	"github.com/allisson/ordersaga/internal/app"
	"github.com/allisson/ordersaga/internal/config"
)

func getServiceCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "order-service",
			Usage: "Start the order service (HTTP API, saga coordination workers)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunOrderService(ctx, version)
			},
		},
		{
			Name:  "product-service",
			Usage: "Start the product service (stock reservation workers)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunProductService(ctx, version)
			},
		},
		{
			Name:  "payment-service",
			Usage: "Start the payment service (customer credit workers)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunPaymentService(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBConnectionString)
			},
		},
	}
}
