package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	orderDomain "github.com/davicafu/orderflow/internal/order/domain"
	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
	sharedBus "github.com/davicafu/orderflow/internal/shared/infra/platform/bus"
	"github.com/davicafu/orderflow/tests/mocks"
)

func newTestRecord(eventType string) sharedDomain.OutboxRecord {
	return sharedDomain.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"total":10}`),
		Metadata: map[string]string{
			"event_id": "E1",
			"version":  "1",
		},
		IdempotencyKey: "key-1",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestOutboxWorker_ProcessBatch_Success(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockEventBus)

	rec := newTestRecord(orderDomain.OrderCreated)

	repo.On("FetchPending", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()

	var published sharedBus.Message
	publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(1).(sharedBus.Message)
		}).
		Return(nil).Once()
	repo.On("MarkProcessed", mock.Anything, rec.ID, mock.Anything).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 0, 10, zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)

	assert.Equal(t, orderDomain.OrderTopic, published.Topic)
	assert.Equal(t, "order-1", published.Key)
	assert.Equal(t, "E1", published.Headers["messageId"])
	assert.Equal(t, "key-1", published.Headers["idempotency-key"])

	var evt sharedEvents.IntegrationEvent
	assert.NoError(t, json.Unmarshal(published.Value, &evt))
	assert.Equal(t, "E1", evt.EventID)
	assert.Equal(t, orderDomain.OrderCreated, evt.EventType)
	assert.Equal(t, 1, evt.Version)
}

func TestOutboxWorker_ProcessBatch_PublisherFails(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockEventBus)

	rec := newTestRecord(orderDomain.OrderCreated)

	repo.On("FetchPending", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("kafka is down"))

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 0, 10, zap.NewNop())

	// ACT: varios ciclos fallidos seguidos
	for i := 0; i < 3; i++ {
		worker.ProcessBatch(context.Background())
	}

	// ASSERT: la fila nunca se marca, queda para el siguiente ciclo
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	publisher.AssertNumberOfCalls(t, "Publish", 3)
}

func TestOutboxWorker_ProcessBatch_UnknownEventType(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockEventBus)

	rec := newTestRecord("order.telepathy")

	repo.On("FetchPending", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 0, 10, zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT: sin topic conocido no se publica ni se marca
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_MarkFailureStillCountsAsPublished(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockEventBus)

	rec := newTestRecord(orderDomain.OrderConfirmed)

	repo.On("FetchPending", mock.Anything, 10).Return([]sharedDomain.OutboxRecord{rec}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("MarkProcessed", mock.Anything, rec.ID, mock.Anything).Return(errors.New("db hiccup")).Once()

	worker := NewOutboxWorker(repo, publisher, orderDomain.NewEventRegistry(), 0, 10, zap.NewNop())

	// ACT: el mensaje ya salió; solo habrá una entrega duplicada aguas abajo
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
