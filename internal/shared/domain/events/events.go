package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// DomainEvent es el sobre tipado que comparten publisher y consumer.
// EventID es único por ocurrencia lógica: una retransmisión reutiliza el mismo ID.
type DomainEvent struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Version       int             `json:"version"` // generación del esquema
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Payload       json.RawMessage `json:"payload"` // contenido específico del evento
}

// IntegrationEvent es el contrato de intercambio en el broker (wire JSON).
// NO es una entidad del dominio: se define plano para cruzar contextos.
type IntegrationEvent struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Validate comprueba los campos obligatorios del sobre.
// Un mensaje que no los trae es un fallo de esquema permanente.
func (e *IntegrationEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("integration event: missing eventId")
	}
	if e.EventType == "" {
		return fmt.Errorf("integration event: missing eventType")
	}
	return nil
}

// EventMetadata describe cómo enrutar un tipo de evento hacia el broker.
// Los registros por contexto se mezclan una sola vez en el arranque,
// sin inspección de tipos en runtime.
type EventMetadata struct {
	Topic string
}

// MergeRegistries combina los registros de cada contexto en uno global.
func MergeRegistries(registries ...map[string]EventMetadata) map[string]EventMetadata {
	merged := make(map[string]EventMetadata)
	for _, reg := range registries {
		for k, v := range reg {
			merged[k] = v
		}
	}
	return merged
}
