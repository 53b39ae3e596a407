package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davicafu/orderflow/internal/order/domain"
	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

// OrderRepoPostgres implementa domain.OrderRepository. Las mutaciones abren
// una transacción y le pasan el *sql.Tx al callback como TxScope, de modo
// que el outbox se escribe atómicamente con el pedido.
type OrderRepoPostgres struct {
	db *sql.DB
}

func NewOrderRepoPostgres(db *sql.DB) *OrderRepoPostgres {
	return &OrderRepoPostgres{db: db}
}

// InitPostgres crea la tabla de pedidos si no existe.
func InitPostgres(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			lines JSONB NOT NULL,
			total NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id);
	`)
	return err
}

func (r *OrderRepoPostgres) Create(ctx context.Context, o *domain.Order, inTx func(scope sharedDomain.TxScope) error) error {
	linesBytes, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, status, lines, total, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.CustomerID, string(o.Status), linesBytes, o.Total, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if inTx != nil {
		if err := inTx(tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepoPostgres) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, inTx func(scope sharedDomain.TxScope) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return domain.ErrOrderNotFound
	}

	if inTx != nil {
		if err := inTx(tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var (
		o          domain.Order
		status     string
		linesBytes []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, lines, total, created_at, updated_at FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.CustomerID, &status, &linesBytes, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Status = domain.Status(status)
	if err := json.Unmarshal(linesBytes, &o.Lines); err != nil {
		return nil, fmt.Errorf("invalid lines in order row %s: %w", id, err)
	}

	return &o, nil
}

// Verificación en tiempo de compilación.
var _ domain.OrderRepository = (*OrderRepoPostgres)(nil)
