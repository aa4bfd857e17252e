package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/ordersaga/internal/money"
	"github.com/allisson/ordersaga/internal/order/domain"
	"github.com/allisson/ordersaga/internal/order/http/dto"
)

// mockOrderUseCase is a mock implementation of OrderUseCase.
type mockOrderUseCase struct {
	mock.Mock
}

func (m *mockOrderUseCase) Create(
	ctx context.Context,
	customerID uuid.UUID,
	items []domain.OrderItem,
) (*domain.Order, error) {
	args := m.Called(ctx, customerID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderUseCase) List(ctx context.Context, offset, limit int) ([]*domain.Order, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func setupTestHandler(t *testing.T) (*OrderHandler, *mockOrderUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &mockOrderUseCase{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewOrderHandler(mockUseCase, logger), mockUseCase
}

func createTestContext(t *testing.T, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func testDomainOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(uuid.Must(uuid.NewV7()), []domain.OrderItem{
		{ProductID: uuid.Must(uuid.NewV7()), Quantity: 3, Price: money.MustFromString("7.33")},
	})
	require.NoError(t, err)
	return order
}

func TestOrderHandler_CreateHandler(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		order := testDomainOrder(t)
		request := dto.CreateOrderRequest{
			CustomerID: order.CustomerID.String(),
			Items: []dto.OrderItemRequest{
				{ProductID: order.Items[0].ProductID.String(), Quantity: 3, Price: "7.33"},
			},
		}

		mockUseCase.On("Create", mock.Anything, order.CustomerID, mock.Anything).Return(order, nil)

		c, w := createTestContext(t, http.MethodPost, "/v1/orders", request)
		handler.CreateHandler(c)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response dto.OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, order.ID.String(), response.ID)
		assert.Equal(t, order.SagaID.String(), response.SagaID)
		assert.Equal(t, "PENDING", response.Status)
		assert.Equal(t, "STARTED", response.SagaStatus)
		assert.Equal(t, "21.99", response.Price)
	})

	t.Run("invalid customer id", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		request := dto.CreateOrderRequest{
			CustomerID: "not-a-uuid",
			Items:      []dto.OrderItemRequest{{ProductID: uuid.Must(uuid.NewV7()).String(), Quantity: 1, Price: "1.00"}},
		}

		c, w := createTestContext(t, http.MethodPost, "/v1/orders", request)
		handler.CreateHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("missing items", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		request := dto.CreateOrderRequest{CustomerID: uuid.Must(uuid.NewV7()).String()}

		c, w := createTestContext(t, http.MethodPost, "/v1/orders", request)
		handler.CreateHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("negative price", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		request := dto.CreateOrderRequest{
			CustomerID: uuid.Must(uuid.NewV7()).String(),
			Items:      []dto.OrderItemRequest{{ProductID: uuid.Must(uuid.NewV7()).String(), Quantity: 1, Price: "-5.00"}},
		}

		c, w := createTestContext(t, http.MethodPost, "/v1/orders", request)
		handler.CreateHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader([]byte("{not json")))

		handler.CreateHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOrderHandler_GetHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		order := testDomainOrder(t)
		mockUseCase.On("Get", mock.Anything, order.ID).Return(order, nil)

		c, w := createTestContext(t, http.MethodGet, "/v1/orders/"+order.ID.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: order.ID.String()}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.OrderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, order.ID.String(), response.ID)
		assert.Len(t, response.Items, 1)
	})

	t.Run("not found", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		id := uuid.Must(uuid.NewV7())
		mockUseCase.On("Get", mock.Anything, id).Return(nil, domain.ErrOrderNotFound)

		c, w := createTestContext(t, http.MethodGet, "/v1/orders/"+id.String(), nil)
		c.Params = gin.Params{{Key: "id", Value: id.String()}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(t, http.MethodGet, "/v1/orders/abc", nil)
		c.Params = gin.Params{{Key: "id", Value: "abc"}}

		handler.GetHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestOrderHandler_ListHandler(t *testing.T) {
	t.Run("default pagination", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		orders := []*domain.Order{testDomainOrder(t), testDomainOrder(t)}
		mockUseCase.On("List", mock.Anything, 0, 50).Return(orders, nil)

		c, w := createTestContext(t, http.MethodGet, "/v1/orders", nil)
		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response dto.ListOrdersResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Len(t, response.Orders, 2)
		assert.Equal(t, 50, response.Limit)
	})

	t.Run("invalid limit", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(t, http.MethodGet, "/v1/orders?limit=5000", nil)
		handler.ListHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
