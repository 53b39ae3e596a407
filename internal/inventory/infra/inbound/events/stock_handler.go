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
// eventos de inventario pueden disparar.
type OrderWorkflow interface {
	CancelOrder(ctx context.Context, id uuid.UUID) error
}

type stockPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

// StockEventHandler procesa los eventos de inventario (stock.*). Los eventos
// informativos solo se registran; stock.failed cancela el pedido afectado.
type StockEventHandler struct {
	workflow OrderWorkflow
	log      *zap.Logger
}

func NewStockEventHandler(workflow OrderWorkflow, log *zap.Logger) *StockEventHandler {
	return &StockEventHandler{workflow: workflow, log: log}
}

func (h *StockEventHandler) EventType() string {
	return "stock.*"
}

func (h *StockEventHandler) CanHandle(eventType string) bool {
	return strings.HasPrefix(eventType, "stock.")
}

func (h *StockEventHandler) Handle(ctx context.Context, evt sharedEvents.DomainEvent) error {
	var payload stockPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		// Un payload corrupto no mejora reintentando.
		return sharedConsumer.Permanent(fmt.Errorf("invalid stock payload: %w", err))
	}

	fields := []zap.Field{
		zap.String("event_id", evt.EventID),
		zap.String("order_id", payload.OrderID),
		zap.String("product_id", payload.ProductID),
		zap.Int("quantity", payload.Quantity),
	}

	switch evt.EventType {
	case "stock.reserved":
		h.log.Info("📬 Stock reservado", fields...)
		return nil

	case "stock.confirmed":
		h.log.Info("📬 Reserva de stock confirmada", fields...)
		return nil

	case "stock.released":
		h.log.Info("♻️ Stock liberado", fields...)
		return nil

	case "stock.failed":
		orderID, err := uuid.Parse(payload.OrderID)
		if err != nil {
			return sharedConsumer.Permanent(fmt.Errorf("invalid order id %q: %w", payload.OrderID, err))
		}
		h.log.Warn("⚠️ Reserva de stock fallida, cancelando pedido",
			append(fields, zap.String("reason", payload.Reason))...)
		return h.workflow.CancelOrder(ctx, orderID)

	default:
		h.log.Warn("Evento de stock desconocido", zap.String("event_type", evt.EventType))
		return nil
	}
}

var _ sharedConsumer.EventHandler = (*StockEventHandler)(nil)
