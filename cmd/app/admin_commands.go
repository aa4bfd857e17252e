package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/ordersaga/cmd/app/commands"
	"github.com/allisson/ordersaga/internal/app"
	"github.com/allisson/ordersaga/internal/config"
)

func getAdminCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-product",
			Usage: "Create a new product with an initial stock level",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Product name",
				},
				&cli.StringFlag{
					Name:     "price",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Unit price as a decimal string (e.g., 19.99)",
				},
				&cli.IntFlag{
					Name:     "quantity",
					Aliases:  []string{"q"},
					Required: true,
					Usage:    "Initial available stock quantity",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				productUseCase, err := container.ProductUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateProduct(
					ctx,
					productUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("name"),
					cmd.String("price"),
					int(cmd.Int("quantity")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "add-credit",
			Usage: "Top up a customer's credit account, opening it on first use",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "customer-id",
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "Customer ID (UUID)",
				},
				&cli.StringFlag{
					Name:     "amount",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "Credit amount as a decimal string (e.g., 100.00)",
				},
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				paymentUseCase, err := container.PaymentUseCase()
				if err != nil {
					return err
				}

				return commands.RunAddCredit(
					ctx,
					paymentUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("customer-id"),
					cmd.String("amount"),
					cmd.String("format"),
				)
			},
		},
	}
}
