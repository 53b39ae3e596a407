package processors

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
	"github.com/davicafu/orderflow/tests/mocks"
)

func paymentTask(t *testing.T, data jobs.PaymentJobData) *jobs.Task {
	t.Helper()
	payload, err := json.Marshal(data)
	assert.NoError(t, err)
	return &jobs.Task{ID: "job-1", Name: "capture-payment", Queue: "payments", Payload: payload}
}

func noProgress(pct int, msg string) {}

func TestPaymentProcessor_CapturesPayment(t *testing.T) {
	// ARRANGE
	gateway := new(mocks.MockPaymentGateway)
	gateway.On("Capture", mock.Anything, "order-1", "card", 42.5, "EUR").Return("tx-99", nil).Once()

	proc := NewPaymentProcessor(gateway, zap.NewNop())
	task := paymentTask(t, jobs.PaymentJobData{OrderID: "order-1", Method: "card", Amount: 42.5, Currency: "EUR"})

	// ACT
	data, err := proc.Process(context.Background(), task, noProgress)

	// ASSERT
	assert.NoError(t, err)
	assert.Equal(t, "tx-99", data["transaction_id"])
	gateway.AssertExpectations(t)
}

func TestPaymentProcessor_InvalidMethodIsNonRetryable(t *testing.T) {
	gateway := new(mocks.MockPaymentGateway)
	proc := NewPaymentProcessor(gateway, zap.NewNop())

	task := paymentTask(t, jobs.PaymentJobData{OrderID: "order-1", Method: "iou", Amount: 10})

	_, err := proc.Process(context.Background(), task, noProgress)

	assert.Error(t, err)
	assert.False(t, jobs.IsRetryableError(err))
	gateway.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentProcessor_ClassifierOverridesPatterns(t *testing.T) {
	proc := NewPaymentProcessor(new(mocks.MockPaymentGateway), zap.NewNop())

	// Rechazo explícito de pasarela: definitivo aunque el mensaje contenga
	// pistas de red.
	assert.False(t, proc.IsRetryable(errors.New("gateway says: card declined")))
	assert.False(t, proc.IsRetryable(errors.New("insufficient funds")))
	// Fallo de red genuino: transitorio.
	assert.True(t, proc.IsRetryable(errors.New("connection refused")))
}

func TestOrderProcessor_TotalMismatchIsNonRetryable(t *testing.T) {
	proc := NewOrderProcessor(zap.NewNop())

	data := jobs.OrderJobData{
		OrderID: "order-1",
		Items:   []jobs.OrderItem{{ProductID: "p1", Quantity: 2, Price: 5}},
		Total:   99, // computado: 10
	}
	payload, err := json.Marshal(data)
	assert.NoError(t, err)

	_, err = proc.Process(context.Background(), &jobs.Task{Payload: payload}, noProgress)

	assert.Error(t, err)
	assert.False(t, jobs.IsRetryableError(err))
}

func TestNotificationProcessor_UnsubscribedRecipientIsNonRetryable(t *testing.T) {
	sender := new(mocks.MockNotificationSender)
	sender.On("IsUnsubscribed", mock.Anything, "user@example.com").Return(true, nil).Once()

	proc := NewNotificationProcessor(sender, zap.NewNop())
	data := jobs.NotificationJobData{Channel: "email", Template: "order-created", Recipient: "user@example.com"}
	payload, err := json.Marshal(data)
	assert.NoError(t, err)

	_, err = proc.Process(context.Background(), &jobs.Task{Payload: payload}, noProgress)

	assert.Error(t, err)
	assert.False(t, jobs.IsRetryableError(err))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInventoryProcessor_AdjustsStock(t *testing.T) {
	store := new(mocks.MockStockStore)
	store.On("Adjust", mock.Anything, "p1", "reserve", 3).Return(7, nil).Once()

	proc := NewInventoryProcessor(store, zap.NewNop())
	data := jobs.InventoryJobData{ProductID: "p1", Action: "reserve", Quantity: 3}
	payload, err := json.Marshal(data)
	assert.NoError(t, err)

	result, err := proc.Process(context.Background(), &jobs.Task{Payload: payload}, noProgress)

	assert.NoError(t, err)
	assert.Equal(t, 7, result["remaining"])
	store.AssertExpectations(t)
}
