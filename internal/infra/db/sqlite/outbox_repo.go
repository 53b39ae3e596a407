package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

// OutboxRepoSQLite implementa sharedDomain.OutboxRepository para despliegues locales.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// InitSQLite crea la tabla outbox si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			event_metadata TEXT NOT NULL DEFAULT '{}',
			idempotency_key TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (processed, created_at);
	`)
	return err
}

func (r *OutboxRepoSQLite) InsertBatch(ctx context.Context, scope sharedDomain.TxScope, records []sharedDomain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*8)
	for _, rec := range records {
		metaBytes, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal outbox metadata: %w", err)
		}

		placeholders = append(placeholders, "(?,?,?,?,?,?,?,?)")
		args = append(args,
			rec.ID.String(), rec.AggregateType, rec.AggregateID, rec.EventType,
			string(rec.Payload), string(metaBytes), rec.IdempotencyKey, rec.CreatedAt,
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

func (r *OutboxRepoSQLite) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, event_metadata, idempotency_key, created_at
		 FROM outbox WHERE processed=0 ORDER BY created_at LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sharedDomain.OutboxRecord
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		var id, payload, meta string

		if err := rows.Scan(&id, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&payload, &meta, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid id in outbox row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in outbox row %s: %w", id, err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *OutboxRepoSQLite) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET processed=1, processed_at=? WHERE id=? AND processed=0`, at, id.String())
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
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
