package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord representa un evento pendiente de publicar en el broker.
// Las filas nunca se borran: la tabla hace también de log de auditoría.
type OutboxRecord struct {
	ID             uuid.UUID         `json:"id"`
	AggregateType  string            `json:"aggregate_type"` // ej. "order", "payment"
	AggregateID    string            `json:"aggregate_id"`
	EventType      string            `json:"event_type"` // ej. "order.created"
	Payload        json.RawMessage   `json:"payload"`
	Metadata       map[string]string `json:"metadata"`        // source, correlation, ip, user-agent...
	IdempotencyKey string            `json:"idempotency_key"` // eventType_eventId_aggregateId_version
	Processed      bool              `json:"processed"`       // si ya se publicó
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TxScope representa la unidad de trabajo del llamante. Cada adapter de
// persistencia define su tipo concreto (*sql.Tx, sesión de Mongo...); con
// nil el adapter abre su propia transacción. Así la inserción en outbox
// comparte commit con la mutación de negocio que produjo el evento.
type TxScope interface{}

// OutboxRepository define el contrato para acceder a la tabla outbox.
type OutboxRepository interface {
	// InsertBatch escribe todos los registros en una sola llamada de almacenamiento,
	// dentro del scope del llamante si se proporciona.
	InsertBatch(ctx context.Context, scope TxScope, records []OutboxRecord) error

	// FetchPending devuelve hasta limit registros con processed=false,
	// ordenados por created_at ascendente.
	FetchPending(ctx context.Context, limit int) ([]OutboxRecord, error)

	// MarkProcessed marca la fila como publicada. Solo el relay la invoca,
	// y una fila procesada nunca vuelve a pendiente.
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
}
