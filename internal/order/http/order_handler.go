// Package http provides HTTP handlers for order operations. Creating an order
// starts a saga; its progress is visible through the order and saga statuses.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/ordersaga/internal/httputil"
	"github.com/allisson/ordersaga/internal/order/domain"
	"github.com/allisson/ordersaga/internal/order/http/dto"
	customValidation "github.com/allisson/ordersaga/internal/validation"
)

// OrderUseCase defines the order operations the handler exposes.
type OrderUseCase interface {
	Create(ctx context.Context, customerID uuid.UUID, items []domain.OrderItem) (*domain.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, offset, limit int) ([]*domain.Order, error)
}

// OrderHandler handles HTTP requests for order operations.
type OrderHandler struct {
	orderUseCase OrderUseCase
	logger       *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orderUseCase OrderUseCase, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orderUseCase: orderUseCase, logger: logger}
}

// CreateHandler creates a new order and starts its saga.
// POST /v1/orders
// Returns 201 Created with the PENDING order.
func (h *OrderHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	customerID, items, err := req.ToDomain()
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	order, err := h.orderUseCase.Create(c.Request.Context(), customerID, items)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapOrderToResponse(order))
}

// GetHandler returns an order with its saga status.
// GET /v1/orders/:id
func (h *OrderHandler) GetHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	order, err := h.orderUseCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOrderToResponse(order))
}

// ListHandler returns a page of orders, newest first.
// GET /v1/orders?offset=0&limit=50
func (h *OrderHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	orders, err := h.orderUseCase.List(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOrdersToListResponse(orders, offset, limit))
}
