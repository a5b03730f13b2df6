// Package stock holds the authoritative inventory availability model. Counts
// are mutated only through the Ledger's conditional operations, never by
// read-then-write callers.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// ErrUnknownItem is returned when no stock row exists for the requested
// (item, size) key.
var ErrUnknownItem = errors.New("unknown stock item")

// InsufficientStockError reports a decrement that would drive availability
// below zero. It is a typed result, not a programming error.
type InsufficientStockError struct {
	ItemID   string
	Size     string
	Quantity int
}

func (e *InsufficientStockError) Error() string {
	if e.Size == "" {
		return fmt.Sprintf("insufficient stock for item %s (requested %d)", e.ItemID, e.Quantity)
	}
	return fmt.Sprintf("insufficient stock for item %s size %s (requested %d)", e.ItemID, e.Size, e.Quantity)
}

// Availability is the tagged representation of an item's stock: either a
// single scalar count or a count per size variant. The variant is resolved
// once at the ledger boundary and never duck-typed downstream.
type Availability interface {
	availability()
}

// Scalar is a single count for items without size variants.
type Scalar int

// BySize maps size labels to counts.
type BySize map[string]int

func (Scalar) availability() {}
func (BySize) availability() {}

// Ledger exposes atomic stock operations. CheckAndDecrement must be a single
// conditional update per (itemID, size) key: concurrent callers against the
// same key can never drive the count negative. Size is empty for scalar
// items.
type Ledger interface {
	// CheckAndDecrement reduces availability by quantity if and only if the
	// current count covers it. Returns *InsufficientStockError otherwise.
	CheckAndDecrement(ctx context.Context, itemID, size string, quantity int) error
	// Restore reverses a prior decrement. Provided unconditionally; whether
	// order cancellation restocks is a policy decision made by the caller.
	Restore(ctx context.Context, itemID, size string, quantity int) error
	// Availability reports the current counts for an item.
	Availability(ctx context.Context, itemID string) (Availability, error)
}

// Line identifies one decrement of a multi-line reservation.
type Line struct {
	ItemID   string
	Size     string
	Quantity int
}

// DecrementAll applies CheckAndDecrement for every line, in order. If any
// line fails, the decrements already applied are restored so the ledger is
// left exactly as found: a failed checkout retains no partial decrement.
func DecrementAll(ctx context.Context, ledger Ledger, lines []Line) error {
	for i, line := range lines {
		if err := ledger.CheckAndDecrement(ctx, line.ItemID, line.Size, line.Quantity); err != nil {
			restoreLines(ctx, ledger, lines[:i])
			return err
		}
	}
	return nil
}

// RestoreAll reverses decrements for every line.
func RestoreAll(ctx context.Context, ledger Ledger, lines []Line) {
	restoreLines(ctx, ledger, lines)
}

func restoreLines(ctx context.Context, ledger Ledger, lines []Line) {
	for _, line := range lines {
		// Restore failures cannot abort the rollback; remaining lines still
		// need their stock back.
		_ = ledger.Restore(ctx, line.ItemID, line.Size, line.Quantity)
	}
}
