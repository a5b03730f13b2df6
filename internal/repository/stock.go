package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/checkout-core/internal/domain/stock"
)

const (
	// The availability check and the decrement are one conditional UPDATE, so
	// concurrent buyers of the same (item, size) row can never oversell it.
	decrementStockSQL = `UPDATE stock SET quantity = quantity - $3
		WHERE item_id = $1 AND size = $2 AND quantity >= $3`

	restoreStockSQL = `UPDATE stock SET quantity = quantity + $3
		WHERE item_id = $1 AND size = $2`

	stockRowExistsSQL = `SELECT EXISTS (SELECT 1 FROM stock WHERE item_id = $1 AND size = $2)`

	getAvailabilitySQL = `SELECT size, quantity FROM stock WHERE item_id = $1`
)

var _ stock.Ledger = (*StockLedger)(nil)

// StockLedger implements stock.Ledger backed by PostgreSQL. Sizeless items
// occupy a single row with an empty size label.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

func (r *StockLedger) CheckAndDecrement(ctx context.Context, itemID, size string, quantity int) error {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, itemID, size, quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock for item %q: %w", itemID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, stockRowExistsSQL, itemID, size).Scan(&exists); err != nil {
		return fmt.Errorf("decrementing stock for item %q: %w", itemID, err)
	}
	if !exists {
		return stock.ErrUnknownItem
	}
	return &stock.InsufficientStockError{ItemID: itemID, Size: size, Quantity: quantity}
}

func (r *StockLedger) Restore(ctx context.Context, itemID, size string, quantity int) error {
	tag, err := r.pool.Exec(ctx, restoreStockSQL, itemID, size, quantity)
	if err != nil {
		return fmt.Errorf("restoring stock for item %q: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrUnknownItem
	}
	return nil
}

func (r *StockLedger) Availability(ctx context.Context, itemID string) (stock.Availability, error) {
	rows, err := r.pool.Query(ctx, getAvailabilitySQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("reading availability for item %q: %w", itemID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			size     string
			quantity int32
		)
		if err := rows.Scan(&size, &quantity); err != nil {
			return nil, fmt.Errorf("reading availability for item %q: %w", itemID, err)
		}
		counts[size] = int(quantity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading availability for item %q: %w", itemID, err)
	}

	if len(counts) == 0 {
		return nil, stock.ErrUnknownItem
	}
	if n, ok := counts[""]; ok && len(counts) == 1 {
		return stock.Scalar(n), nil
	}
	return stock.BySize(counts), nil
}
