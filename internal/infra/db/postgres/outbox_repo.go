package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// driver pgx para database/sql
	_ "github.com/jackc/pgx/v5/stdlib"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// InitPostgres crea la tabla outbox si no existe.
func InitPostgres(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id UUID PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			event_metadata JSONB NOT NULL DEFAULT '{}',
			idempotency_key TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (created_at) WHERE processed = FALSE;
		CREATE INDEX IF NOT EXISTS idx_outbox_idempotency ON outbox (idempotency_key);
	`)
	return err
}

// InsertBatch escribe todos los registros en un único INSERT multi-VALUES.
// Si scope es un *sql.Tx del llamante, la escritura comparte su transacción.
func (r *OutboxRepoPostgres) InsertBatch(ctx context.Context, scope sharedDomain.TxScope, records []sharedDomain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*8)
	for i, rec := range records {
		metaBytes, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal outbox metadata: %w", err)
		}

		base := i * 8
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType,
			[]byte(rec.Payload), metaBytes, rec.IdempotencyKey, rec.CreatedAt,
		)
	}

	query := `INSERT INTO outbox
		(id, aggregate_type, aggregate_id, event_type, payload, event_metadata, idempotency_key, created_at)
		VALUES ` + strings.Join(placeholders, ",")

	var err error
	if tx, ok := scope.(*sql.Tx); ok && tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("insert outbox batch: %w", err)
	}
	return nil
}

// FetchPending obtiene los registros no procesados, más antiguos primero.
func (r *OutboxRepoPostgres) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, event_metadata, idempotency_key, created_at
		 FROM outbox WHERE processed=false ORDER BY created_at LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		var payloadBytes, metaBytes []byte

		if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&payloadBytes, &metaBytes, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.Payload = json.RawMessage(payloadBytes)
		if err := json.Unmarshal(metaBytes, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in outbox row %s: %w", rec.ID, err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// MarkProcessed marca el registro como publicado. La fila no se borra nunca.
func (r *OutboxRepoPostgres) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET processed=true, processed_at=$2 WHERE id=$1 AND processed=false`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox record not found or already processed: %s", id)
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
