package stock

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory Ledger. The check and the decrement happen
// under one lock, giving the same conditional-update guarantee as the
// SQL-backed ledger. Used by tests and local development.
type MemoryLedger struct {
	mu     sync.Mutex
	counts map[memKey]int
}

type memKey struct {
	itemID string
	size   string
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counts: make(map[memKey]int)}
}

// Set seeds availability for an item. A Scalar seeds the sizeless row; a
// BySize seeds one row per size label.
func (l *MemoryLedger) Set(itemID string, a Availability) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch v := a.(type) {
	case Scalar:
		l.counts[memKey{itemID: itemID}] = int(v)
	case BySize:
		for size, n := range v {
			l.counts[memKey{itemID: itemID, size: size}] = n
		}
	}
}

func (l *MemoryLedger) CheckAndDecrement(_ context.Context, itemID, size string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := memKey{itemID: itemID, size: size}
	current, ok := l.counts[key]
	if !ok {
		return ErrUnknownItem
	}
	if current < quantity {
		return &InsufficientStockError{ItemID: itemID, Size: size, Quantity: quantity}
	}
	l.counts[key] = current - quantity
	return nil
}

func (l *MemoryLedger) Restore(_ context.Context, itemID, size string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := memKey{itemID: itemID, size: size}
	if _, ok := l.counts[key]; !ok {
		return ErrUnknownItem
	}
	l.counts[key] += quantity
	return nil
}

func (l *MemoryLedger) Availability(_ context.Context, itemID string) (Availability, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n, ok := l.counts[memKey{itemID: itemID}]; ok {
		return Scalar(n), nil
	}

	sizes := make(BySize)
	for key, n := range l.counts {
		if key.itemID == itemID {
			sizes[key.size] = n
		}
	}
	if len(sizes) == 0 {
		return nil, ErrUnknownItem
	}
	return sizes, nil
}

var _ Ledger = (*MemoryLedger)(nil)
