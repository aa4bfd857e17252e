package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/ordersaga/internal/money"
	paymentDomain "github.com/allisson/ordersaga/internal/payment/domain"
)

// CreditAdder is the slice of the payment use case this command needs.
type CreditAdder interface {
	AddCredit(ctx context.Context, customerID uuid.UUID, amount money.Amount) (*paymentDomain.Credit, error)
}

// RunAddCredit tops up a customer's credit account, opening it on first use.
// Supports both text and JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunAddCredit(
	ctx context.Context,
	paymentUseCase CreditAdder,
	logger *slog.Logger,
	writer io.Writer,
	customerIDStr string,
	amountStr string,
	format string,
) error {
	customerID, err := uuid.Parse(customerIDStr)
	if err != nil {
		return fmt.Errorf("invalid customer id %q: %w", customerIDStr, err)
	}

	amount, err := money.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	logger.Info("adding credit",
		slog.String("customer_id", customerID.String()),
		slog.String("amount", amount.String()),
	)

	credit, err := paymentUseCase.AddCredit(ctx, customerID, amount)
	if err != nil {
		return fmt.Errorf("failed to add credit: %w", err)
	}

	if format == "json" {
		outputCreditJSON(writer, credit)
	} else {
		outputCreditText(writer, credit)
	}

	logger.Info("credit added",
		slog.String("customer_id", credit.CustomerID.String()),
		slog.String("balance", credit.Amount.String()),
	)
	return nil
}

// outputCreditText outputs the result in human-readable text format.
func outputCreditText(writer io.Writer, credit *paymentDomain.Credit) {
	fmt.Fprintf(writer, "Credit added successfully\n")
	fmt.Fprintf(writer, "  Customer: %s\n", credit.CustomerID)
	fmt.Fprintf(writer, "  Balance:  %s\n", credit.Amount)
}

// outputCreditJSON outputs the result in JSON format for machine consumption.
func outputCreditJSON(writer io.Writer, credit *paymentDomain.Credit) {
	result := map[string]interface{}{
		"customer_id": credit.CustomerID.String(),
		"balance":     credit.Amount.String(),
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(writer, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(writer, string(jsonBytes))
}
