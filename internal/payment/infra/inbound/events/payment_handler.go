package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
	sharedConsumer "github.com/davicafu/orderflow/internal/shared/infra/consumer"
)

// OrderWorkflow es el puerto hacia los casos de uso de pedidos que los
// eventos de pago pueden disparar.
type OrderWorkflow interface {
	ConfirmOrder(ctx context.Context, id uuid.UUID) error
	CancelOrder(ctx context.Context, id uuid.UUID) error
}

type paymentPayload struct {
	OrderID       string  `json:"order_id"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Reason        string  `json:"reason,omitempty"`
}

// PaymentEventHandler procesa los eventos de pago (payment.*): un pago
// capturado confirma el pedido; un pago fallido lo cancela.
type PaymentEventHandler struct {
	workflow OrderWorkflow
	log      *zap.Logger
}

func NewPaymentEventHandler(workflow OrderWorkflow, log *zap.Logger) *PaymentEventHandler {
	return &PaymentEventHandler{workflow: workflow, log: log}
}

func (h *PaymentEventHandler) EventType() string {
	return "payment.*"
}

func (h *PaymentEventHandler) CanHandle(eventType string) bool {
	return strings.HasPrefix(eventType, "payment.")
}

func (h *PaymentEventHandler) Handle(ctx context.Context, evt sharedEvents.DomainEvent) error {
	var payload paymentPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return sharedConsumer.Permanent(fmt.Errorf("invalid payment payload: %w", err))
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return sharedConsumer.Permanent(fmt.Errorf("invalid order id %q: %w", payload.OrderID, err))
	}

	fields := []zap.Field{
		zap.String("event_id", evt.EventID),
		zap.String("order_id", payload.OrderID),
		zap.Float64("amount", payload.Amount),
		zap.String("currency", payload.Currency),
	}

	switch evt.EventType {
	case "payment.captured":
		h.log.Info("📬 Pago capturado, confirmando pedido",
			append(fields, zap.String("transaction_id", payload.TransactionID))...)
		return h.workflow.ConfirmOrder(ctx, orderID)

	case "payment.failed":
		h.log.Warn("⚠️ Pago fallido, cancelando pedido",
			append(fields, zap.String("reason", payload.Reason))...)
		return h.workflow.CancelOrder(ctx, orderID)

	case "payment.refunded":
		h.log.Info("♻️ Pago devuelto", fields...)
		return nil

	default:
		h.log.Warn("Evento de pago desconocido", zap.String("event_type", evt.EventType))
		return nil
	}
}

var _ sharedConsumer.EventHandler = (*PaymentEventHandler)(nil)
