package outbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// Publisher escribe eventos de dominio en la tabla outbox. Si el llamante
// aporta un TxScope, la inserción comparte transacción con su mutación de
// negocio: el evento queda registrado si y solo si la mutación comitea.
type Publisher struct {
	repo sharedDomain.OutboxRepository
	log  *zap.Logger
}

func NewPublisher(repo sharedDomain.OutboxRepository, log *zap.Logger) *Publisher {
	return &Publisher{repo: repo, log: log}
}

// IdempotencyKey deriva la clave determinista de la identidad del evento.
// Republicar el mismo evento lógico produce la misma clave.
func IdempotencyKey(eventType, eventID, aggregateID string, version int) string {
	return fmt.Sprintf("%s_%s_%s_%d", eventType, eventID, aggregateID, version)
}

// Publish registra un único evento.
func (p *Publisher) Publish(ctx context.Context, evt sharedEvents.DomainEvent, metadata map[string]string, scope sharedDomain.TxScope) error {
	return p.PublishBatch(ctx, []sharedEvents.DomainEvent{evt}, metadata, scope)
}

// PublishBatch registra un lote de eventos en una sola llamada de
// almacenamiento. Con un lote vacío no hace I/O. Los errores del repositorio
// se propagan sin envolver para que la transacción del llamante haga rollback.
func (p *Publisher) PublishBatch(ctx context.Context, evts []sharedEvents.DomainEvent, metadata map[string]string, scope sharedDomain.TxScope) error {
	if len(evts) == 0 {
		return nil
	}

	records := make([]sharedDomain.OutboxRecord, 0, len(evts))
	for _, evt := range evts {
		records = append(records, toRecord(evt, metadata))
	}

	if err := p.repo.InsertBatch(ctx, scope, records); err != nil {
		return err
	}

	p.log.Debug("Outbox records written",
		zap.Int("count", len(records)),
		zap.Bool("in_caller_tx", scope != nil),
	)
	return nil
}

func toRecord(evt sharedEvents.DomainEvent, metadata map[string]string) sharedDomain.OutboxRecord {
	meta := make(map[string]string, len(metadata)+5)
	for k, v := range metadata {
		meta[k] = v
	}
	// El relay reconstruye el sobre de integración desde estos campos.
	meta["event_id"] = evt.EventID
	meta["version"] = strconv.Itoa(evt.Version)
	if evt.CorrelationID != "" {
		meta["correlation_id"] = evt.CorrelationID
	}
	if evt.CausationID != "" {
		meta["causation_id"] = evt.CausationID
	}
	if evt.UserID != "" {
		meta["user_id"] = evt.UserID
	}

	createdAt := evt.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return sharedDomain.OutboxRecord{
		ID:             uuid.New(),
		AggregateType:  evt.AggregateType,
		AggregateID:    evt.AggregateID,
		EventType:      evt.EventType,
		Payload:        evt.Payload,
		Metadata:       meta,
		IdempotencyKey: IdempotencyKey(evt.EventType, evt.EventID, evt.AggregateID, evt.Version),
		Processed:      false,
		CreatedAt:      createdAt,
	}
}
