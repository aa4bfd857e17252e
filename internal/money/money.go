// Package money provides a fixed-point decimal amount type for prices and
// credit balances. All amounts are normalized with banker's rounding to two
// decimal places.
package money

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// ErrInvalidAmount indicates an amount string could not be parsed as a decimal.
var ErrInvalidAmount = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid money amount")

// Amount is a fixed-point monetary value with two decimal places.
type Amount struct {
	value decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{value: decimal.Zero}
}

// New creates an Amount from a decimal value, applying banker's rounding.
func New(value decimal.Decimal) Amount {
	return Amount{value: value.RoundBank(2)}
}

// NewFromString parses an Amount from its decimal string representation.
func NewFromString(s string) (Amount, error) {
	value, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return New(value), nil
}

// MustFromString parses an Amount and panics on failure. Intended for tests
// and constants.
func MustFromString(s string) Amount {
	amount, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return amount
}

// Add returns the sum of two amounts.
func (a Amount) Add(other Amount) Amount {
	return New(a.value.Add(other.value))
}

// Sub returns the difference of two amounts.
func (a Amount) Sub(other Amount) Amount {
	return New(a.value.Sub(other.value))
}

// MulInt returns the amount multiplied by an integer quantity.
func (a Amount) MulInt(n int) Amount {
	return New(a.value.Mul(decimal.NewFromInt(int64(n))))
}

// GreaterThanOrEqual reports whether a >= other.
func (a Amount) GreaterThanOrEqual(other Amount) bool {
	return a.value.GreaterThanOrEqual(other.value)
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.value.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (a Amount) IsPositive() bool {
	return a.value.IsPositive()
}

// Equal reports whether two amounts are equal.
func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

// String returns the fixed two-decimal string representation.
func (a Amount) String() string {
	return a.value.StringFixedBank(2)
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// Value implements driver.Valuer so amounts can be stored in numeric columns.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	var value decimal.Decimal
	if err := value.Scan(src); err != nil {
		return ErrInvalidAmount
	}
	*a = New(value)
	return nil
}

// MarshalJSON encodes the amount as a JSON string to avoid float precision loss.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes the amount from a JSON string or number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var value decimal.Decimal
	if err := value.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	*a = New(value)
	return nil
}
