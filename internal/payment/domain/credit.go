package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/ordersaga/internal/errors"
	"github.com/allisson/ordersaga/internal/money"
)

// Domain-specific errors for credit operations.
var (
	// ErrCreditNotFound indicates the customer has no credit account.
	ErrCreditNotFound = apperrors.Wrap(apperrors.ErrNotFound, "credit not found")

	// ErrInsufficientCredit indicates the balance does not cover the charge.
	// This is a business rejection: the saga answers with a failed payment
	// instead of retrying.
	ErrInsufficientCredit = apperrors.New("insufficient credit")

	// ErrCreditVersionConflict indicates the row changed since it was read.
	ErrCreditVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "credit version conflict")

	// ErrInvalidCreditAmount indicates a non-positive debit, refund or top-up.
	ErrInvalidCreditAmount = apperrors.Wrap(apperrors.ErrInvalidInput, "credit amount must be positive")
)

// Credit is a customer's prepaid balance. The invariant Amount >= 0 always
// holds; a debit below zero is rejected as insufficient credit.
type Credit struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Amount     money.Amount
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// NewCredit opens a credit account with an initial balance.
func NewCredit(customerID uuid.UUID, amount money.Amount) (*Credit, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidCreditAmount
	}

	now := time.Now().UTC()
	return &Credit{
		ID:         uuid.Must(uuid.NewV7()),
		CustomerID: customerID,
		Amount:     amount,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// Debit subtracts amount from the balance.
func (c *Credit) Debit(amount money.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidCreditAmount
	}
	if !c.Amount.GreaterThanOrEqual(amount) {
		return apperrors.Wrapf(ErrInsufficientCredit,
			"customer %s has %s, %s required", c.CustomerID, c.Amount, amount)
	}
	c.Amount = c.Amount.Sub(amount)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Refund returns amount to the balance.
func (c *Credit) Refund(amount money.Amount) error {
	if !amount.IsPositive() {
		return ErrInvalidCreditAmount
	}
	c.Amount = c.Amount.Add(amount)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Deposit adds amount to the balance.
func (c *Credit) Deposit(amount money.Amount) error {
	return c.Refund(amount)
}
