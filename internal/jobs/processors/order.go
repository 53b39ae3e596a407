package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

// OrderProcessor ejecuta los jobs de la cola de pedidos: verificación de
// líneas, cálculo de totales y transición del pedido.
type OrderProcessor struct {
	log *zap.Logger
}

func NewOrderProcessor(log *zap.Logger) *OrderProcessor {
	return &OrderProcessor{log: log}
}

func (p *OrderProcessor) Queue() string { return "orders" }

func (p *OrderProcessor) Process(ctx context.Context, task *jobs.Task, progress jobs.ProgressFunc) (map[string]interface{}, error) {
	var data jobs.OrderJobData
	if err := json.Unmarshal(task.Payload, &data); err != nil {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid order job payload: %w", err))
	}
	if data.OrderID == "" {
		return nil, jobs.NonRetryable(fmt.Errorf("order job without order_id"))
	}
	if len(data.Items) == 0 {
		return nil, jobs.NonRetryable(fmt.Errorf("order %s has no items", data.OrderID))
	}

	progress(25, "Validating order lines")

	total := 0.0
	for _, item := range data.Items {
		if item.Quantity <= 0 {
			return nil, jobs.NonRetryable(fmt.Errorf("order %s: invalid quantity for product %s", data.OrderID, item.ProductID))
		}
		total += float64(item.Quantity) * item.Price
	}

	progress(60, "Computing totals")

	// Una discrepancia de totales es un dato corrupto, no un fallo transitorio.
	if data.Total > 0 && !almostEqual(total, data.Total) {
		return nil, jobs.NonRetryable(fmt.Errorf("order %s: total mismatch, declared %.2f computed %.2f",
			data.OrderID, data.Total, total))
	}

	progress(90, "Order verified")

	p.log.Debug("Pedido verificado",
		zap.String("order_id", data.OrderID),
		zap.Float64("total", total),
	)

	return map[string]interface{}{
		"order_id": data.OrderID,
		"items":    len(data.Items),
		"total":    total,
	}, nil
}

func almostEqual(a, b float64) bool {
	diff := a - b
	return diff < 0.01 && diff > -0.01
}
