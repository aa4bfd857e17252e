// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/ordersaga/internal/money"
	"github.com/allisson/ordersaga/internal/order/domain"
	customValidation "github.com/allisson/ordersaga/internal/validation"
)

// OrderItemRequest is one product line in a create order request. Price is a
// decimal string to avoid float precision loss.
type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// Validate checks if the order item is valid. The value receiver lets the
// parent request validate each slice element.
func (r OrderItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProductID, validation.Required, customValidation.UUID),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&r.Price, validation.Required, customValidation.PositiveAmount),
	)
}

// CreateOrderRequest contains the parameters for creating an order.
type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Items      []OrderItemRequest `json:"items"`
}

// Validate checks if the create order request is valid.
func (r *CreateOrderRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CustomerID, validation.Required, customValidation.UUID),
		validation.Field(&r.Items, validation.Required, validation.Length(1, 0)),
	)
}

// ToDomain converts the request into domain values. Validate must have
// succeeded first.
func (r *CreateOrderRequest) ToDomain() (uuid.UUID, []domain.OrderItem, error) {
	customerID, err := uuid.Parse(r.CustomerID)
	if err != nil {
		return uuid.Nil, nil, err
	}

	items := make([]domain.OrderItem, len(r.Items))
	for i, item := range r.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return uuid.Nil, nil, err
		}
		price, err := money.NewFromString(item.Price)
		if err != nil {
			return uuid.Nil, nil, err
		}
		items[i] = domain.OrderItem{
			ProductID: productID,
			Quantity:  item.Quantity,
			Price:     price,
		}
	}

	return customerID, items, nil
}
