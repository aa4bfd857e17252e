package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/ordersaga/internal/money"
	productDomain "github.com/allisson/ordersaga/internal/product/domain"
)

// ProductCreator is the slice of the product use case this command needs.
type ProductCreator interface {
	Create(ctx context.Context, name string, price money.Amount, quantity int) (*productDomain.Product, error)
}

// RunCreateProduct creates a new product with an initial stock level.
// Supports both text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCreateProduct(
	ctx context.Context,
	productUseCase ProductCreator,
	logger *slog.Logger,
	writer io.Writer,
	name string,
	priceStr string,
	quantity int,
	format string,
) error {
	price, err := money.NewFromString(priceStr)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", priceStr, err)
	}

	logger.Info("creating product",
		slog.String("name", name),
		slog.String("price", price.String()),
		slog.Int("quantity", quantity),
	)

	product, err := productUseCase.Create(ctx, name, price, quantity)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	if format == "json" {
		outputProductJSON(writer, product)
	} else {
		outputProductText(writer, product)
	}

	logger.Info("product created", slog.String("product_id", product.ID.String()))
	return nil
}

// outputProductText outputs the result in human-readable text format.
func outputProductText(writer io.Writer, product *productDomain.Product) {
	fmt.Fprintf(writer, "Product created successfully\n")
	fmt.Fprintf(writer, "  ID:       %s\n", product.ID)
	fmt.Fprintf(writer, "  Name:     %s\n", product.Name)
	fmt.Fprintf(writer, "  Price:    %s\n", product.Price)
	fmt.Fprintf(writer, "  Quantity: %d\n", product.QuantityAvailable)
}

// outputProductJSON outputs the result in JSON format for machine consumption.
func outputProductJSON(writer io.Writer, product *productDomain.Product) {
	result := map[string]interface{}{
		"id":                 product.ID.String(),
		"name":               product.Name,
		"price":              product.Price.String(),
		"quantity_available": product.QuantityAvailable,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(writer, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(writer, string(jsonBytes))
}
