package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/orderflow/internal/jobs"
)

// MockPaymentGateway simula la pasarela de pagos
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Capture(ctx context.Context, orderID, method string, amount float64, currency string) (string, error) {
	args := m.Called(ctx, orderID, method, amount, currency)
	return args.String(0), args.Error(1)
}

// MockStockStore simula el servicio de inventario
type MockStockStore struct {
	mock.Mock
}

func (m *MockStockStore) Adjust(ctx context.Context, productID, action string, quantity int) (int, error) {
	args := m.Called(ctx, productID, action, quantity)
	return args.Int(0), args.Error(1)
}

// MockNotificationSender simula el proveedor de notificaciones
type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) Send(ctx context.Context, channel, recipient, template string, vars map[string]string) error {
	args := m.Called(ctx, channel, recipient, template, vars)
	return args.Error(0)
}

func (m *MockNotificationSender) IsUnsubscribed(ctx context.Context, recipient string) (bool, error) {
	args := m.Called(ctx, recipient)
	return args.Bool(0), args.Error(1)
}

// MockProgressReporter simula el sumidero de progreso de jobs
type MockProgressReporter struct {
	mock.Mock
}

var _ jobs.ProgressReporter = (*MockProgressReporter)(nil)

func (m *MockProgressReporter) Report(ctx context.Context, task *jobs.Task, pct int, msg string) error {
	args := m.Called(ctx, task, pct, msg)
	return args.Error(0)
}
