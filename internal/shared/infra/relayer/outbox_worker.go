package relayer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/shared/domain"
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
	sharedBus "github.com/davicafu/orderflow/internal/shared/infra/platform/bus"
	"github.com/davicafu/orderflow/pkg/metrics"
)

// Archiver recibe los registros ya publicados para su archivado analítico.
// Es best-effort: un fallo aquí nunca afecta al relay.
type Archiver interface {
	LogBatch(ctx context.Context, records []domain.OutboxRecord) error
}

// Worker drena los registros pendientes de la tabla outbox hacia el broker.
// Semántica at-least-once: si el proceso cae entre el ack del broker y el
// MarkProcessed, la fila se publica otra vez y el consumidor deduplica.
type Worker struct {
	repo          domain.OutboxRepository
	publisher     sharedBus.EventBus
	eventRegistry map[string]sharedEvents.EventMetadata
	archiver      Archiver // opcional
	interval      time.Duration
	batchSize     int
	warnCycles    int
	source        string
	metrics       *metrics.Metrics // opcional
	log           *zap.Logger

	// contador de fallos consecutivos por fila, solo de este proceso
	failCounts map[uuid.UUID]int
}

func NewOutboxWorker(
	repo domain.OutboxRepository,
	publisher sharedBus.EventBus,
	registry map[string]sharedEvents.EventMetadata,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:          repo,
		publisher:     publisher,
		eventRegistry: registry,
		interval:      interval,
		batchSize:     batchSize,
		warnCycles:    10,
		source:        "orderflow",
		log:           log,
		failCounts:    make(map[uuid.UUID]int),
	}
}

// WithArchiver activa el archivado de eventos publicados.
func (w *Worker) WithArchiver(a Archiver) *Worker {
	w.archiver = a
	return w
}

// WithWarnCycles ajusta a partir de cuántos ciclos fallidos seguidos se avisa.
func (w *Worker) WithWarnCycles(n int) *Worker {
	if n > 0 {
		w.warnCycles = n
	}
	return w
}

// WithMetrics conecta los contadores prometheus del relay.
func (w *Worker) WithMetrics(m *metrics.Metrics) *Worker {
	w.metrics = m
	return w
}

// Start inicia el bucle de polling del worker.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)

	w.log.Info("🚀 Outbox relay iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("batch", w.batchSize),
	)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info("🛑 Outbox relay detenido.")
				return
			case <-ticker.C:
				w.ProcessBatch(ctx)
			}
		}
	}()
}

// ProcessBatch drena un lote de registros pendientes. Exportado para tests.
func (w *Worker) ProcessBatch(ctx context.Context) {
	records, err := w.repo.FetchPending(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener registros pendientes", zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.Outbox.PendingGauge.Set(float64(len(records)))
	}
	if len(records) == 0 {
		return
	}

	w.log.Debug("📬 Registros pendientes encontrados", zap.Int("count", len(records)))

	published := make([]domain.OutboxRecord, 0, len(records))
	for _, rec := range records {
		if w.publishAndMark(ctx, rec) {
			published = append(published, rec)
		}
	}

	if w.archiver != nil && len(published) > 0 {
		if err := w.archiver.LogBatch(ctx, published); err != nil {
			w.log.Warn("⚠️ Archivado de eventos publicados falló", zap.Error(err))
		}
	}
}

// publishAndMark publica un registro y lo marca como procesado. Si la
// publicación falla, la fila queda intacta para el siguiente ciclo: el reintento
// es indefinido, nunca se descarta un evento de salida.
func (w *Worker) publishAndMark(ctx context.Context, rec domain.OutboxRecord) bool {
	meta, ok := w.eventRegistry[rec.EventType]
	if !ok {
		// Sin topic conocido no podemos enrutar; se avisa y se deja la fila
		// para que un operador registre el tipo o intervenga.
		w.log.Error("Tipo de evento desconocido en registro", zap.String("event_type", rec.EventType))
		return false
	}

	value, err := json.Marshal(w.toIntegrationEvent(rec))
	if err != nil {
		w.log.Error("Error al serializar evento de outbox",
			zap.String("record_id", rec.ID.String()),
			zap.Error(err),
		)
		return false
	}

	msg := sharedBus.Message{
		Topic: meta.Topic,
		Key:   rec.AggregateID,
		Value: value,
		Headers: map[string]string{
			"messageId":       eventID(rec),
			"idempotency-key": rec.IdempotencyKey,
		},
	}

	if err := w.publisher.Publish(ctx, msg); err != nil {
		w.failCounts[rec.ID]++
		if w.metrics != nil {
			w.metrics.Outbox.PublishFailsTotal.WithLabelValues(rec.EventType).Inc()
		}
		if w.failCounts[rec.ID] >= w.warnCycles {
			w.log.Warn("⚠️ Registro de outbox sigue fallando tras varios ciclos",
				zap.String("record_id", rec.ID.String()),
				zap.Int("cycles", w.failCounts[rec.ID]),
				zap.Error(err),
			)
		} else {
			w.log.Debug("No se pudo publicar registro de outbox",
				zap.String("record_id", rec.ID.String()),
				zap.Error(err),
			)
		}
		return false
	}

	delete(w.failCounts, rec.ID)
	if w.metrics != nil {
		w.metrics.Outbox.PublishedTotal.WithLabelValues(rec.EventType).Inc()
	}

	if err := w.repo.MarkProcessed(ctx, rec.ID, time.Now().UTC()); err != nil {
		// El mensaje ya salió: no se reintenta la publicación, solo quedará
		// una entrega duplicada que el consumidor deduplicará.
		w.log.Warn("⚠️ No se pudo marcar registro como procesado",
			zap.String("record_id", rec.ID.String()),
			zap.Error(err),
		)
		return true
	}

	w.log.Debug("✅ Registro publicado y marcado", zap.String("record_id", rec.ID.String()))
	return true
}

// toIntegrationEvent reconstruye el sobre wire desde la fila de outbox.
func (w *Worker) toIntegrationEvent(rec domain.OutboxRecord) sharedEvents.IntegrationEvent {
	version := 1
	if v, err := strconv.Atoi(rec.Metadata["version"]); err == nil && v > 0 {
		version = v
	}

	source := w.source
	if s := rec.Metadata["source"]; s != "" {
		source = s
	}

	return sharedEvents.IntegrationEvent{
		EventID:       eventID(rec),
		EventType:     rec.EventType,
		Timestamp:     rec.CreatedAt,
		Version:       version,
		Source:        source,
		CorrelationID: rec.Metadata["correlation_id"],
		Payload:       rec.Payload,
	}
}

func eventID(rec domain.OutboxRecord) string {
	if id := rec.Metadata["event_id"]; id != "" {
		return id
	}
	return rec.ID.String()
}
