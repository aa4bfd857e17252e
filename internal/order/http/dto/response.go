package dto

import (
	"time"

	"github.com/allisson/ordersaga/internal/order/domain"
)

// OrderItemResponse represents an order line item in API responses.
type OrderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	SubTotal  string `json:"sub_total"`
}

// OrderResponse represents an order in API responses. SagaStatus exposes the
// derived saga phase alongside the business status.
type OrderResponse struct {
	ID              string              `json:"id"`
	SagaID          string              `json:"saga_id"`
	CustomerID      string              `json:"customer_id"`
	Items           []OrderItemResponse `json:"items,omitempty"`
	Price           string              `json:"price"`
	Status          string              `json:"status"`
	SagaStatus      string              `json:"saga_status"`
	FailureMessages []string            `json:"failure_messages,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ListOrdersResponse wraps a page of orders.
type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// MapOrderToResponse converts a domain order to an API response.
func MapOrderToResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemResponse{
			ID:        item.ID.String(),
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
			SubTotal:  item.SubTotal.String(),
		}
	}

	return OrderResponse{
		ID:              order.ID.String(),
		SagaID:          order.SagaID.String(),
		CustomerID:      order.CustomerID.String(),
		Items:           items,
		Price:           order.Price.String(),
		Status:          string(order.Status),
		SagaStatus:      string(order.SagaStatus()),
		FailureMessages: order.FailureMessages,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

// MapOrdersToListResponse converts a page of domain orders to an API response.
func MapOrdersToListResponse(orders []*domain.Order, offset, limit int) ListOrdersResponse {
	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = MapOrderToResponse(order)
	}
	return ListOrdersResponse{Orders: responses, Offset: offset, Limit: limit}
}
