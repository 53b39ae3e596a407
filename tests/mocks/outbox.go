package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedBus "github.com/davicafu/orderflow/internal/shared/infra/platform/bus"
)

// MockOutboxRepository simula el repo de outbox
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) InsertBatch(ctx context.Context, scope sharedDomain.TxScope, records []sharedDomain.OutboxRecord) error {
	args := m.Called(ctx, scope, records)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// MockEventBus simula el bus de eventos saliente
type MockEventBus struct {
	mock.Mock
}

var _ sharedBus.EventBus = (*MockEventBus)(nil)

func (m *MockEventBus) Publish(ctx context.Context, msg sharedBus.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
