package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. The table name comes
// from configuration because deployments share one database across game
// environments; config.Validate rejects anything but a bare identifier
// before it can reach these queries.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore creates a PostgreSQL-backed order store on the given table.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: table}
}

// Migrate creates the orders table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                 BIGSERIAL PRIMARY KEY,
			order_id           VARCHAR(64) NOT NULL UNIQUE,
			purchaser_address  VARCHAR(42) NOT NULL,
			service_id         BIGINT NOT NULL,
			amount             NUMERIC(30,0) NOT NULL,
			status             VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_status ON %s(status);
		CREATE INDEX IF NOT EXISTS idx_%s_purchaser ON %s(purchaser_address);
	`, p.table, p.table, p.table, p.table, p.table)
	_, err := p.db.ExecContext(ctx, stmt)
	return err
}

// Create records a new pending order.
func (p *PostgresStore) Create(ctx context.Context, order *Order) error {
	if order.Status == "" {
		order.Status = StatusPending
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	stmt := fmt.Sprintf(`
		INSERT INTO %s (order_id, purchaser_address, service_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(30,0), $5, $6, $7)
		RETURNING id
	`, p.table)

	err := p.db.QueryRowContext(ctx, stmt,
		order.OrderID, strings.ToLower(order.PurchaserAddress), order.ServiceID,
		order.Amount, order.Status, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return &QueryError{Op: "create", Err: err}
	}
	return nil
}

// ListPending returns all orders still awaiting fulfillment, oldest first.
func (p *PostgresStore) ListPending(ctx context.Context) ([]*Order, error) {
	stmt := fmt.Sprintf(`
		SELECT id, order_id, purchaser_address, service_id, amount, status, created_at, updated_at
		FROM %s WHERE status = $1
		ORDER BY created_at ASC
	`, p.table)

	rows, err := p.db.QueryContext(ctx, stmt, StatusPending)
	if err != nil {
		return nil, &QueryError{Op: "list pending", Err: err}
	}
	defer func() { _ = rows.Close() }()
	return scanOrders(rows)
}

// ListPendingByAddress returns the pending orders for a purchaser address,
// oldest first.
func (p *PostgresStore) ListPendingByAddress(ctx context.Context, address string) ([]*Order, error) {
	stmt := fmt.Sprintf(`
		SELECT id, order_id, purchaser_address, service_id, amount, status, created_at, updated_at
		FROM %s WHERE purchaser_address = $1 AND status = $2
		ORDER BY created_at ASC
	`, p.table)

	rows, err := p.db.QueryContext(ctx, stmt, strings.ToLower(address), StatusPending)
	if err != nil {
		return nil, &QueryError{Op: "list pending by address", Err: err}
	}
	defer func() { _ = rows.Close() }()
	return scanOrders(rows)
}

// UpdateStatus moves an order to a new status.
func (p *PostgresStore) UpdateStatus(ctx context.Context, orderID, status string) error {
	stmt := fmt.Sprintf(`
		UPDATE %s SET status = $2, updated_at = NOW() WHERE order_id = $1
	`, p.table)

	result, err := p.db.ExecContext(ctx, stmt, orderID, status)
	if err != nil {
		return &QueryError{Op: "update status", Err: err}
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return &QueryError{Op: "update status", Err: err}
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scannable) (*Order, error) {
	var order Order
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&order.ID, &order.OrderID, &order.PurchaserAddress, &order.ServiceID,
		&order.Amount, &order.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if createdAt.Valid {
		order.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		order.UpdatedAt = updatedAt.Time
	}
	return &order, nil
}

func scanOrders(rows *sql.Rows) ([]*Order, error) {
	var result []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}
