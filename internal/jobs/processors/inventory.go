package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

// StockStore es el colaborador que ajusta existencias (servicio de inventario).
type StockStore interface {
	Adjust(ctx context.Context, productID, action string, quantity int) (remaining int, err error)
}

var validActions = map[string]bool{
	"reserve": true,
	"confirm": true,
	"release": true,
}

// InventoryProcessor aplica reservas, confirmaciones y liberaciones de stock.
type InventoryProcessor struct {
	store StockStore
	log   *zap.Logger
}

func NewInventoryProcessor(store StockStore, log *zap.Logger) *InventoryProcessor {
	return &InventoryProcessor{store: store, log: log}
}

func (p *InventoryProcessor) Queue() string { return "inventory" }

func (p *InventoryProcessor) Process(ctx context.Context, task *jobs.Task, progress jobs.ProgressFunc) (map[string]interface{}, error) {
	var data jobs.InventoryJobData
	if err := json.Unmarshal(task.Payload, &data); err != nil {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid inventory job payload: %w", err))
	}
	if !validActions[data.Action] {
		return nil, jobs.NonRetryable(fmt.Errorf("unknown inventory action %q", data.Action))
	}
	if data.Quantity <= 0 {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid quantity %d for product %s", data.Quantity, data.ProductID))
	}

	progress(40, "Adjusting stock")

	remaining, err := p.store.Adjust(ctx, data.ProductID, data.Action, data.Quantity)
	if err != nil {
		return nil, fmt.Errorf("adjust stock %s/%s: %w", data.ProductID, data.Action, err)
	}

	progress(85, "Stock adjusted")

	p.log.Debug("Stock ajustado",
		zap.String("product_id", data.ProductID),
		zap.String("action", data.Action),
		zap.Int("quantity", data.Quantity),
		zap.Int("remaining", remaining),
	)

	return map[string]interface{}{
		"product_id": data.ProductID,
		"action":     data.Action,
		"remaining":  remaining,
	}, nil
}
