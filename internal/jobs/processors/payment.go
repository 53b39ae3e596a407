package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

// PaymentGateway es el colaborador externo que captura cobros. Se inyecta
// para poder simular fallos de pasarela en tests.
type PaymentGateway interface {
	Capture(ctx context.Context, orderID, method string, amount float64, currency string) (txID string, err error)
}

var validMethods = map[string]bool{
	"card":     true,
	"transfer": true,
	"wallet":   true,
}

// PaymentProcessor captura el pago de un pedido contra la pasarela.
type PaymentProcessor struct {
	gateway PaymentGateway
	log     *zap.Logger
}

func NewPaymentProcessor(gateway PaymentGateway, log *zap.Logger) *PaymentProcessor {
	return &PaymentProcessor{gateway: gateway, log: log}
}

func (p *PaymentProcessor) Queue() string { return "payments" }

func (p *PaymentProcessor) Process(ctx context.Context, task *jobs.Task, progress jobs.ProgressFunc) (map[string]interface{}, error) {
	var data jobs.PaymentJobData
	if err := json.Unmarshal(task.Payload, &data); err != nil {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid payment job payload: %w", err))
	}

	// Instrumento de pago inválido: ni un solo reintento.
	if !validMethods[data.Method] {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid payment method %q for order %s", data.Method, data.OrderID))
	}
	if data.Amount <= 0 {
		return nil, jobs.NonRetryable(fmt.Errorf("invalid amount %.2f for order %s", data.Amount, data.OrderID))
	}

	progress(30, "Capturing payment")

	txID, err := p.gateway.Capture(ctx, data.OrderID, data.Method, data.Amount, data.Currency)
	if err != nil {
		// El fallo de pasarela se deja clasificar por IsRetryable: los de
		// red/gateway reintentan, los de rechazo explícito no.
		return nil, fmt.Errorf("capture payment for order %s: %w", data.OrderID, err)
	}

	progress(80, "Payment captured")

	p.log.Info("💳 Pago capturado",
		zap.String("order_id", data.OrderID),
		zap.String("tx_id", txID),
		zap.Float64("amount", data.Amount),
	)

	return map[string]interface{}{
		"order_id":       data.OrderID,
		"transaction_id": txID,
		"amount":         data.Amount,
	}, nil
}

// IsRetryable afina la clasificación genérica: un rechazo explícito de la
// pasarela ("declined", "insufficient funds") es definitivo aunque venga de red.
func (p *PaymentProcessor) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "declined") || strings.Contains(msg, "insufficient funds") {
		return false
	}
	return jobs.IsRetryableError(err)
}

// Verificación estática: el procesador aporta su propio clasificador.
var _ jobs.RetryClassifier = (*PaymentProcessor)(nil)
