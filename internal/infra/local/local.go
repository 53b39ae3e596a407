// Package local contiene adaptadores en memoria para desarrollo local:
// sustituyen a la pasarela de pagos, al servicio de inventario y al
// proveedor de notificaciones cuando no hay integraciones reales.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentGateway simula la pasarela: todo cobro con importe positivo pasa.
type PaymentGateway struct {
	log *zap.Logger
}

func NewPaymentGateway(log *zap.Logger) *PaymentGateway {
	return &PaymentGateway{log: log}
}

func (g *PaymentGateway) Capture(ctx context.Context, orderID, method string, amount float64, currency string) (string, error) {
	txID := uuid.NewString()
	g.log.Info("💳 Cobro simulado",
		zap.String("order_id", orderID),
		zap.String("method", method),
		zap.Float64("amount", amount),
		zap.String("currency", currency),
		zap.String("transaction_id", txID),
	)
	return txID, nil
}

// StockStore mantiene existencias en memoria. Sin stock inicial registrado,
// un producto parte con defaultStock unidades.
type StockStore struct {
	mu           sync.Mutex
	levels       map[string]int
	defaultStock int
	log          *zap.Logger
}

func NewStockStore(defaultStock int, log *zap.Logger) *StockStore {
	return &StockStore{
		levels:       make(map[string]int),
		defaultStock: defaultStock,
		log:          log,
	}
}

func (s *StockStore) Adjust(ctx context.Context, productID, action string, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level, ok := s.levels[productID]
	if !ok {
		level = s.defaultStock
	}

	switch action {
	case "reserve":
		if level < quantity {
			return level, fmt.Errorf("insufficient stock for %s: have %d, want %d", productID, level, quantity)
		}
		level -= quantity
	case "release":
		level += quantity
	case "confirm":
		// La reserva ya descontó; confirmar no mueve existencias.
	default:
		return level, fmt.Errorf("unknown stock action %q", action)
	}

	s.levels[productID] = level
	return level, nil
}

// NotificationSender escribe las notificaciones en el log.
type NotificationSender struct {
	mu           sync.RWMutex
	unsubscribed map[string]bool
	log          *zap.Logger
}

func NewNotificationSender(log *zap.Logger) *NotificationSender {
	return &NotificationSender{
		unsubscribed: make(map[string]bool),
		log:          log,
	}
}

func (n *NotificationSender) Send(ctx context.Context, channel, recipient, template string, vars map[string]string) error {
	n.log.Info("📨 Notificación simulada",
		zap.String("channel", channel),
		zap.String("recipient", recipient),
		zap.String("template", template),
		zap.Any("vars", vars),
	)
	return nil
}

func (n *NotificationSender) IsUnsubscribed(ctx context.Context, recipient string) (bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.unsubscribed[recipient], nil
}

// Unsubscribe da de baja a un destinatario. Pensado para tests y demos.
func (n *NotificationSender) Unsubscribe(recipient string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsubscribed[recipient] = true
}
