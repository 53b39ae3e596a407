package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// EventHandler es el contrato polimórfico de los manejadores de eventos.
// Añadir soporte para un tipo nuevo es registrar un handler más, sin tocar
// el pipeline del consumidor.
type EventHandler interface {
	EventType() string
	CanHandle(eventType string) bool
	Handle(ctx context.Context, evt sharedEvents.DomainEvent) error
}

// Registry mantiene la lista de handlers registrados. Se resuelve una vez en
// el arranque; el despacho es por coincidencia de capacidad, primero que acepta gana.
type Registry struct {
	handlers []EventHandler
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log}
}

func (r *Registry) Register(h EventHandler) {
	r.handlers = append(r.handlers, h)
	r.log.Info("Handler registrado", zap.String("event_type", h.EventType()))
}

// HandlerFor devuelve el primer handler cuya capacidad acepta el tipo, o nil.
func (r *Registry) HandlerFor(eventType string) EventHandler {
	for _, h := range r.handlers {
		if h.CanHandle(eventType) {
			return h
		}
	}
	return nil
}

// Execute envuelve Handle con logging uniforme. Los errores del handler se
// propagan al pipeline, que aplica la política de reintentos.
func (r *Registry) Execute(ctx context.Context, h EventHandler, evt sharedEvents.DomainEvent) error {
	started := time.Now()

	err := h.Handle(ctx, evt)

	fields := []zap.Field{
		zap.String("event_type", evt.EventType),
		zap.String("event_id", evt.EventID),
		zap.Duration("took", time.Since(started)),
	}
	if err != nil {
		r.log.Error("Handler falló", append(fields, zap.Error(err))...)
		return err
	}

	r.log.Info("Evento procesado", fields...)
	return nil
}
