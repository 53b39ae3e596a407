package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

// EventArchive vuelca a ClickHouse los eventos ya publicados por el relay.
// Complementa la tabla outbox como log de auditoría consultable.
type EventArchive struct {
	db *sql.DB
}

// NewEventArchive es el constructor.
func NewEventArchive(addr string, dbName string) (*EventArchive, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &EventArchive{db: conn}, nil
}

// LogBatch inserta un lote de registros publicados. ClickHouse funciona
// mejor con inserciones en lotes, así que el relay agrupa por ciclo.
func (a *EventArchive) LogBatch(ctx context.Context, records []sharedDomain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO events_log (id, aggregate_type, aggregate_id, event_type, idempotency_key, payload, published_at)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	publishedAt := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(
			ctx,
			rec.ID.String(),
			rec.AggregateType,
			rec.AggregateID,
			rec.EventType,
			rec.IdempotencyKey,
			string(rec.Payload),
			publishedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
