package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/ordersaga/internal/money"
	paymentDomain "github.com/allisson/ordersaga/internal/payment/domain"
)

type mockCreditAdder struct {
	mock.Mock
}

func (m *mockCreditAdder) AddCredit(
	ctx context.Context,
	customerID uuid.UUID,
	amount money.Amount,
) (*paymentDomain.Credit, error) {
	args := m.Called(ctx, customerID, amount)
	if credit := args.Get(0); credit != nil {
		return credit.(*paymentDomain.Credit), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRunAddCredit(t *testing.T) {
	customerID := uuid.Must(uuid.NewV7())

	t.Run("adds credit with text output", func(t *testing.T) {
		credit, err := paymentDomain.NewCredit(customerID, money.MustFromString("100.00"))
		require.NoError(t, err)

		useCase := &mockCreditAdder{}
		useCase.On("AddCredit", mock.Anything, customerID, money.MustFromString("100.00")).
			Return(credit, nil)

		var out bytes.Buffer
		err = RunAddCredit(context.Background(), useCase, testLogger(), &out,
			customerID.String(), "100.00", "text")

		require.NoError(t, err)
		useCase.AssertExpectations(t)
		assert.Contains(t, out.String(), "Credit added successfully")
		assert.Contains(t, out.String(), customerID.String())
	})

	t.Run("adds credit with json output", func(t *testing.T) {
		credit, err := paymentDomain.NewCredit(customerID, money.MustFromString("100.00"))
		require.NoError(t, err)

		useCase := &mockCreditAdder{}
		useCase.On("AddCredit", mock.Anything, customerID, money.MustFromString("100.00")).
			Return(credit, nil)

		var out bytes.Buffer
		err = RunAddCredit(context.Background(), useCase, testLogger(), &out,
			customerID.String(), "100.00", "json")

		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, customerID.String(), result["customer_id"])
		assert.Equal(t, "100.00", result["balance"])
	})

	t.Run("rejects invalid customer id", func(t *testing.T) {
		useCase := &mockCreditAdder{}

		var out bytes.Buffer
		err := RunAddCredit(context.Background(), useCase, testLogger(), &out,
			"not-a-uuid", "100.00", "text")

		assert.ErrorContains(t, err, "invalid customer id")
		useCase.AssertNotCalled(t, "AddCredit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid amount", func(t *testing.T) {
		useCase := &mockCreditAdder{}

		var out bytes.Buffer
		err := RunAddCredit(context.Background(), useCase, testLogger(), &out,
			customerID.String(), "ten", "text")

		assert.ErrorContains(t, err, "invalid amount")
	})

	t.Run("propagates use case errors", func(t *testing.T) {
		useCase := &mockCreditAdder{}
		useCase.On("AddCredit", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("database down"))

		var out bytes.Buffer
		err := RunAddCredit(context.Background(), useCase, testLogger(), &out,
			customerID.String(), "100.00", "text")

		assert.ErrorContains(t, err, "failed to add credit")
	})
}
