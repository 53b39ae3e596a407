package sqlite

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

// OrderRepoSQLite implementa domain.OrderRepository para despliegues locales.
type OrderRepoSQLite struct {
	db *sql.DB
}

func NewOrderRepoSQLite(db *sql.DB) *OrderRepoSQLite {
	return &OrderRepoSQLite{db: db}
}

// InitSQLite crea la tabla de pedidos si no existe.
func InitSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			lines TEXT NOT NULL,
			total REAL NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (customer_id);
	`)
	return err
}

func (r *OrderRepoSQLite) Create(ctx context.Context, o *domain.Order, inTx func(scope sharedDomain.TxScope) error) error {
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
		 VALUES (?,?,?,?,?,?,?)`,
		o.ID.String(), o.CustomerID, string(o.Status), string(linesBytes), o.Total, o.CreatedAt, o.UpdatedAt,
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

func (r *OrderRepoSQLite) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, inTx func(scope sharedDomain.TxScope) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status=?, updated_at=? WHERE id=?`,
		string(status), time.Now().UTC(), id.String(),
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

func (r *OrderRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var (
		o          domain.Order
		idStr      string
		status     string
		linesBytes []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, lines, total, created_at, updated_at FROM orders WHERE id=?`, id.String(),
	).Scan(&idStr, &o.CustomerID, &status, &linesBytes, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid id in order row: %w", err)
	}
	o.Status = domain.Status(status)
	if err := json.Unmarshal(linesBytes, &o.Lines); err != nil {
		return nil, fmt.Errorf("invalid lines in order row %s: %w", id, err)
	}

	return &o, nil
}

// Verificación en tiempo de compilación.
var _ domain.OrderRepository = (*OrderRepoSQLite)(nil)
