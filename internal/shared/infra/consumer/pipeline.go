package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// Decision es la acción terminal sobre un mensaje entrante.
type Decision int

const (
	// DecisionAck confirma el mensaje: procesado, duplicado o sin handler.
	DecisionAck Decision = iota
	// DecisionRetry devuelve el mensaje a la cola con el contador incrementado.
	DecisionRetry
	// DecisionDeadLetter rechaza el mensaje de forma terminal hacia el DLQ.
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRetry:
		return "retry"
	default:
		return "dead_letter"
	}
}

// Inbound es un mensaje crudo del broker más su marcador de reintentos.
type Inbound struct {
	Value      []byte
	RetryCount int
}

// Result es el veredicto del pipeline sobre un mensaje.
type Result struct {
	Decision  Decision
	Reason    string // validated|dispatched|duplicate|no_handler|invalid|handler_error|internal
	EventType string
}

// Pipeline es la máquina de estados del consumidor, pura respecto al broker:
// RECEIVED → VALIDATED → {DUPLICATE | NO_HANDLER | DISPATCHED} → decisión.
// El adapter de Kafka traduce la decisión a commit/republicación/DLQ.
type Pipeline struct {
	registry   *Registry
	cache      *IdempotencyCache
	maxRetries int
	log        *zap.Logger
}

func NewPipeline(registry *Registry, cache *IdempotencyCache, maxRetries int, log *zap.Logger) *Pipeline {
	return &Pipeline{
		registry:   registry,
		cache:      cache,
		maxRetries: maxRetries,
		log:        log,
	}
}

// CacheLen expone el tamaño actual de la caché de idempotencia, para
// observabilidad.
func (p *Pipeline) CacheLen() int {
	return p.cache.Len()
}

// Process decide el destino de un mensaje. Nunca entra en pánico: cualquier
// fallo del propio pipeline (no del handler) es permanente, para garantizar
// que la partición avanza.
func (p *Pipeline) Process(ctx context.Context, msg Inbound) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Pánico procesando mensaje, se descarta al DLQ", zap.Any("panic", r))
			result = Result{Decision: DecisionDeadLetter, Reason: "internal"}
		}
	}()

	// 1. Parseo y validación de esquema: fallo = rechazo permanente, el
	// handler no llega a ejecutarse.
	var wire sharedEvents.IntegrationEvent
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		p.log.Warn("Mensaje con JSON inválido", zap.Error(err))
		return Result{Decision: DecisionDeadLetter, Reason: "invalid"}
	}
	if err := wire.Validate(); err != nil {
		p.log.Warn("Mensaje sin campos obligatorios", zap.Error(err))
		return Result{Decision: DecisionDeadLetter, Reason: "invalid"}
	}

	// 2. Traducción al vocabulario interno (los desconocidos pasan igual).
	internalType := TranslateEventType(wire.EventType)

	// 3. Idempotencia: un duplicado no es un error, se confirma en silencio.
	if p.cache.Seen(wire.EventID) {
		p.log.Debug("Evento duplicado ignorado",
			zap.String("event_id", wire.EventID),
			zap.String("event_type", internalType),
		)
		return Result{Decision: DecisionAck, Reason: "duplicate", EventType: internalType}
	}

	// 4. Búsqueda de handler: sin handler se confirma con aviso, para no
	// bloquear la cola con mensajes inenrutables.
	handler := p.registry.HandlerFor(internalType)
	if handler == nil {
		p.log.Warn("Sin handler para el tipo de evento",
			zap.String("event_type", internalType),
			zap.String("event_id", wire.EventID),
		)
		return Result{Decision: DecisionAck, Reason: "no_handler", EventType: internalType}
	}

	// 5. Despacho.
	domainEvt := sharedEvents.DomainEvent{
		EventID:       wire.EventID,
		EventType:     internalType,
		Version:       wire.Version,
		Timestamp:     wire.Timestamp,
		CorrelationID: wire.CorrelationID,
		Payload:       wire.Payload,
	}

	if err := p.registry.Execute(ctx, handler, domainEvt); err != nil {
		return p.classifyFailure(msg, internalType, err)
	}

	// 6. Éxito: se recuerda el eventId y se confirma.
	p.cache.Record(wire.EventID)
	return Result{Decision: DecisionAck, Reason: "dispatched", EventType: internalType}
}

// classifyFailure aplica la política de reintentos del §manejo de errores:
// errores de negocio no reintentables van directos al DLQ; los transitorios
// se reencolan hasta agotar el máximo.
func (p *Pipeline) classifyFailure(msg Inbound, eventType string, err error) Result {
	if IsPermanent(err) {
		p.log.Warn("Error no reintentable, mensaje al DLQ",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return Result{Decision: DecisionDeadLetter, Reason: "handler_error", EventType: eventType}
	}

	if msg.RetryCount < p.maxRetries {
		p.log.Warn(fmt.Sprintf("Error transitorio, reintento %d/%d", msg.RetryCount+1, p.maxRetries),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return Result{Decision: DecisionRetry, Reason: "handler_error", EventType: eventType}
	}

	p.log.Error("Reintentos agotados, mensaje al DLQ",
		zap.String("event_type", eventType),
		zap.Int("retries", msg.RetryCount),
		zap.Error(err),
	)
	return Result{Decision: DecisionDeadLetter, Reason: "handler_error", EventType: eventType}
}
