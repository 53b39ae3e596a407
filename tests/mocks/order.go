package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davicafu/orderflow/internal/jobs"
	"github.com/davicafu/orderflow/internal/jobs/queue"
	"github.com/davicafu/orderflow/internal/order/domain"
	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// MockOrderRepository simula el repo de pedidos. Los callbacks inTx se
// ejecutan con un scope nil para que el flujo transaccional sea observable.
type MockOrderRepository struct {
	mock.Mock
}

var _ domain.OrderRepository = (*MockOrderRepository)(nil)

func (m *MockOrderRepository) Create(ctx context.Context, o *domain.Order, inTx func(scope sharedDomain.TxScope) error) error {
	args := m.Called(ctx, o, inTx)
	if inTx != nil {
		if err := inTx(nil); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, inTx func(scope sharedDomain.TxScope) error) error {
	args := m.Called(ctx, id, status, inTx)
	if inTx != nil {
		if err := inTx(nil); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*domain.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEventPublisher simula el publisher de outbox
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, evt sharedEvents.DomainEvent, metadata map[string]string, scope sharedDomain.TxScope) error {
	args := m.Called(ctx, evt, metadata, scope)
	return args.Error(0)
}

// MockJobEnqueuer simula el servicio de colas
type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) EnqueuePaymentJob(ctx context.Context, name string, data jobs.PaymentJobData, opts *queue.Options) (*queue.Job, error) {
	args := m.Called(ctx, name, data, opts)
	if j := args.Get(0); j != nil {
		return j.(*queue.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobEnqueuer) EnqueueInventoryJob(ctx context.Context, name string, data jobs.InventoryJobData, opts *queue.Options) (*queue.Job, error) {
	args := m.Called(ctx, name, data, opts)
	if j := args.Get(0); j != nil {
		return j.(*queue.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobEnqueuer) EnqueueNotificationJob(ctx context.Context, name string, data jobs.NotificationJobData, opts *queue.Options) (*queue.Job, error) {
	args := m.Called(ctx, name, data, opts)
	if j := args.Get(0); j != nil {
		return j.(*queue.Job), args.Error(1)
	}
	return nil, args.Error(1)
}
