package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
	sharedConsumer "github.com/davicafu/orderflow/internal/shared/infra/consumer"
)

type stubWorkflow struct {
	cancelled []uuid.UUID
}

func (w *stubWorkflow) CancelOrder(ctx context.Context, id uuid.UUID) error {
	w.cancelled = append(w.cancelled, id)
	return nil
}

func stockEvent(t *testing.T, eventType string, payload stockPayload) sharedEvents.DomainEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	return sharedEvents.DomainEvent{EventID: "E1", EventType: eventType, Payload: data}
}

func TestStockEventHandler_FailedCancelsOrder(t *testing.T) {
	workflow := &stubWorkflow{}
	handler := NewStockEventHandler(workflow, zap.NewNop())

	orderID := uuid.New()
	evt := stockEvent(t, "stock.failed", stockPayload{
		OrderID: orderID.String(), ProductID: "p1", Quantity: 3, Reason: "out of stock",
	})

	err := handler.Handle(context.Background(), evt)

	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{orderID}, workflow.cancelled)
}

func TestStockEventHandler_InformationalEventsJustAck(t *testing.T) {
	workflow := &stubWorkflow{}
	handler := NewStockEventHandler(workflow, zap.NewNop())

	for _, eventType := range []string{"stock.reserved", "stock.confirmed", "stock.released"} {
		evt := stockEvent(t, eventType, stockPayload{OrderID: uuid.NewString(), ProductID: "p1", Quantity: 1})
		assert.NoError(t, handler.Handle(context.Background(), evt))
	}
	assert.Empty(t, workflow.cancelled)
}

func TestStockEventHandler_CorruptPayloadIsPermanent(t *testing.T) {
	handler := NewStockEventHandler(&stubWorkflow{}, zap.NewNop())

	err := handler.Handle(context.Background(), sharedEvents.DomainEvent{
		EventID:   "E1",
		EventType: "stock.failed",
		Payload:   json.RawMessage(`{broken`),
	})

	assert.Error(t, err)
	assert.True(t, sharedConsumer.IsPermanent(err))
}

func TestStockEventHandler_CanHandleOnlyStockEvents(t *testing.T) {
	handler := NewStockEventHandler(&stubWorkflow{}, zap.NewNop())

	assert.True(t, handler.CanHandle("stock.failed"))
	assert.False(t, handler.CanHandle("payment.captured"))
}
