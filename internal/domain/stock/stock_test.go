package stock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_CheckAndDecrement(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Set("tee-1", BySize{"M": 2, "L": 1})
	l.Set("mug-1", Scalar(5))

	require.NoError(t, l.CheckAndDecrement(ctx, "tee-1", "M", 2))

	var insufficient *InsufficientStockError
	err := l.CheckAndDecrement(ctx, "tee-1", "M", 1)
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "tee-1", insufficient.ItemID)
	assert.Equal(t, "M", insufficient.Size)

	// Other sizes and items are untouched.
	require.NoError(t, l.CheckAndDecrement(ctx, "tee-1", "L", 1))
	require.NoError(t, l.CheckAndDecrement(ctx, "mug-1", "", 5))

	err = l.CheckAndDecrement(ctx, "ghost", "", 1)
	require.ErrorIs(t, err, ErrUnknownItem)
}

func TestMemoryLedger_RestoreReversesDecrement(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Set("mug-1", Scalar(3))

	require.NoError(t, l.CheckAndDecrement(ctx, "mug-1", "", 3))
	require.NoError(t, l.Restore(ctx, "mug-1", "", 3))

	a, err := l.Availability(ctx, "mug-1")
	require.NoError(t, err)
	assert.Equal(t, Scalar(3), a)
}

func TestMemoryLedger_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Set("tee-1", BySize{"M": 2})

	const attempts = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.CheckAndDecrement(ctx, "tee-1", "M", 2); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Len(t, successes, 1, "stock of 2 covers exactly one quantity-2 checkout")

	a, err := l.Availability(ctx, "tee-1")
	require.NoError(t, err)
	assert.Equal(t, BySize{"M": 0}, a)
}

func TestDecrementAll_RollsBackPartialDecrements(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Set("a", Scalar(5))
	l.Set("b", Scalar(1))
	l.Set("c", Scalar(5))

	lines := []Line{
		{ItemID: "a", Quantity: 2},
		{ItemID: "b", Quantity: 2}, // fails: only 1 available
		{ItemID: "c", Quantity: 1},
	}

	var insufficient *InsufficientStockError
	err := DecrementAll(ctx, l, lines)
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "b", insufficient.ItemID)

	for _, tc := range []struct {
		itemID string
		want   Scalar
	}{{"a", 5}, {"b", 1}, {"c", 5}} {
		a, err := l.Availability(ctx, tc.itemID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, a, "item %s must be left untouched", tc.itemID)
	}
}

func TestDecrementAll_AllLinesApplied(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Set("a", Scalar(5))
	l.Set("b", BySize{"S": 2})

	require.NoError(t, DecrementAll(ctx, l, []Line{
		{ItemID: "a", Quantity: 3},
		{ItemID: "b", Size: "S", Quantity: 2},
	}))

	a, err := l.Availability(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, Scalar(2), a)

	b, err := l.Availability(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, BySize{"S": 0}, b)
}
