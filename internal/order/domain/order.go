package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

type OrderLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order es el agregado mínimo del contexto de pedidos: lo justo para que
// cada mutación de negocio tenga un evento de dominio que registrar.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID string      `json:"customer_id"`
	Status     Status      `json:"status"`
	Lines      []OrderLine `json:"lines"`
	Total      float64     `json:"total"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// CanTransition valida la máquina de estados del pedido.
func (o *Order) CanTransition(next Status) bool {
	switch o.Status {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	default:
		return false
	}
}

// OrderRepository persiste pedidos. Las mutaciones reciben un callback que se
// ejecuta DENTRO de la misma transacción, con el TxScope del repositorio:
// ahí escribe el publisher su registro de outbox, de modo que evento y
// mutación comitean o ruedan atrás juntos.
type OrderRepository interface {
	Create(ctx context.Context, o *Order, inTx func(scope sharedDomain.TxScope) error) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, inTx func(scope sharedDomain.TxScope) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
}
