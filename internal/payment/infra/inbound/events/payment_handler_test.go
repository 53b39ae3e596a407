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
	confirmed []uuid.UUID
	cancelled []uuid.UUID
	err       error
}

func (w *stubWorkflow) ConfirmOrder(ctx context.Context, id uuid.UUID) error {
	w.confirmed = append(w.confirmed, id)
	return w.err
}

func (w *stubWorkflow) CancelOrder(ctx context.Context, id uuid.UUID) error {
	w.cancelled = append(w.cancelled, id)
	return w.err
}

func paymentEvent(t *testing.T, eventType string, payload paymentPayload) sharedEvents.DomainEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	return sharedEvents.DomainEvent{
		EventID:   "E1",
		EventType: eventType,
		Payload:   data,
	}
}

func TestPaymentEventHandler_CapturedConfirmsOrder(t *testing.T) {
	workflow := &stubWorkflow{}
	handler := NewPaymentEventHandler(workflow, zap.NewNop())

	orderID := uuid.New()
	evt := paymentEvent(t, "payment.captured", paymentPayload{
		OrderID: orderID.String(), TransactionID: "tx-1", Amount: 10, Currency: "EUR",
	})

	err := handler.Handle(context.Background(), evt)

	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{orderID}, workflow.confirmed)
	assert.Empty(t, workflow.cancelled)
}

func TestPaymentEventHandler_FailedCancelsOrder(t *testing.T) {
	workflow := &stubWorkflow{}
	handler := NewPaymentEventHandler(workflow, zap.NewNop())

	orderID := uuid.New()
	evt := paymentEvent(t, "payment.failed", paymentPayload{
		OrderID: orderID.String(), Reason: "card declined",
	})

	err := handler.Handle(context.Background(), evt)

	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{orderID}, workflow.cancelled)
}

func TestPaymentEventHandler_MalformedOrderIDIsPermanent(t *testing.T) {
	workflow := &stubWorkflow{}
	handler := NewPaymentEventHandler(workflow, zap.NewNop())

	evt := paymentEvent(t, "payment.captured", paymentPayload{OrderID: "not-a-uuid"})

	err := handler.Handle(context.Background(), evt)

	assert.Error(t, err)
	assert.True(t, sharedConsumer.IsPermanent(err))
	assert.Empty(t, workflow.confirmed)
}

func TestPaymentEventHandler_CanHandleOnlyPaymentEvents(t *testing.T) {
	handler := NewPaymentEventHandler(&stubWorkflow{}, zap.NewNop())

	assert.True(t, handler.CanHandle("payment.captured"))
	assert.True(t, handler.CanHandle("payment.refunded"))
	assert.False(t, handler.CanHandle("stock.reserved"))
}
