package domain

import (
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	OrderCreated   = "order.created"
	OrderConfirmed = "order.confirmed"
	OrderCancelled = "order.cancelled"
)

const OrderTopic = "order-events"

// NewEventRegistry enruta los eventos del contexto de pedidos a su topic.
func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		OrderCreated:   {Topic: OrderTopic},
		OrderConfirmed: {Topic: OrderTopic},
		OrderCancelled: {Topic: OrderTopic},
	}
}
