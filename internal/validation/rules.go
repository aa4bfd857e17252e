// Package validation provides custom validation rules for the application.
package validation

import (
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"github.com/shopspring/decimal"

	apperrors "github.com/allisson/ordersaga/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// UUID validates that a string is a well-formed UUID.
var UUID = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_uuid_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if _, err := uuid.Parse(s); err != nil {
		return validation.NewError("validation_uuid", "must be a valid UUID")
	}
	return nil
})

// PositiveAmount validates that a string parses as a decimal greater than zero.
var PositiveAmount = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_amount_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return validation.NewError("validation_amount", "must be a valid decimal amount")
	}
	if !amount.IsPositive() {
		return validation.NewError("validation_amount_positive", "must be greater than zero")
	}
	return nil
})
