package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stocktrail/stocktrail/internal/stock"
)

func historyOf(records ...Record) []Record {
	return records
}

func sellLine(name string, qty int, salePrice float64, condition stock.Condition) LineItem {
	return LineItem{
		ProductName:   name,
		Quantity:      qty,
		UnitSalePrice: salePrice,
		Condition:     condition,
		Disposition:   DispositionSell,
	}
}

func TestReconcileTagsNormalizedNameMatch(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	history := historyOf(Record{
		BatchCode: "T-001",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Vintage Lamp", 2, 14000, stock.ConditionUsed)},
	})
	items := []stock.Item{
		{ID: 1, ProductName: "  vintage   LAMP ", Condition: stock.ConditionUsed, SalePrice: 14000, Quantity: 2, Status: stock.StatusInStock, AcquiredAt: created},
	}

	updated, changed := Reconcile(items, history, nil)
	require.True(t, changed)
	require.Equal(t, map[int64]string{1: "T-001"}, updated)
}

func TestReconcileNoOpCases(t *testing.T) {
	history := historyOf(Record{BatchCode: "T-001", CreatedAt: time.Now(), Items: []LineItem{sellLine("Lamp", 1, 5000, stock.ConditionNew)}})

	updated, changed := Reconcile(nil, history, nil)
	require.False(t, changed)
	require.Nil(t, updated)

	items := []stock.Item{{ID: 1, ProductName: "Lamp", Condition: stock.ConditionNew, Status: stock.StatusInStock, Quantity: 1}}
	updated, changed = Reconcile(items, nil, nil)
	require.False(t, changed)
	require.Nil(t, updated)

	// Already tagged items never become candidates.
	tagged := []stock.Item{{ID: 1, ProductName: "Lamp", Condition: stock.ConditionNew, Status: stock.StatusInStock, Quantity: 1, BatchRef: "T-009"}}
	_, changed = Reconcile(tagged, history, nil)
	require.False(t, changed)

	mapped := []stock.Item{{ID: 1, ProductName: "Lamp", Condition: stock.ConditionNew, Status: stock.StatusInStock, Quantity: 1}}
	_, changed = Reconcile(mapped, history, map[int64]string{1: "T-008"})
	require.False(t, changed)
}

func TestReconcilePrefersSalePriceMatch(t *testing.T) {
	created := time.Now()
	history := historyOf(Record{
		BatchCode: "T-002",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Clock", 5, 9000, stock.ConditionNew)},
	})
	items := []stock.Item{
		// Exact quantity but wrong price.
		{ID: 1, ProductName: "Clock", Condition: stock.ConditionNew, SalePrice: 12000, Quantity: 5, Status: stock.StatusInStock, AcquiredAt: created},
		// Worse quantity but matching rounded price.
		{ID: 2, ProductName: "Clock", Condition: stock.ConditionNew, SalePrice: 9000.4, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created},
	}

	updated, changed := Reconcile(items, history, nil)
	require.True(t, changed)
	require.Equal(t, "T-002", updated[2])
	require.NotContains(t, updated, int64(1))
}

func TestReconcileQuantityThenTimeTieBreak(t *testing.T) {
	created := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	history := historyOf(Record{
		BatchCode: "T-003",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Mug", 3, 2000, stock.ConditionNew)},
	})
	items := []stock.Item{
		{ID: 1, ProductName: "Mug", Condition: stock.ConditionNew, SalePrice: 2000, Quantity: 10, Status: stock.StatusInStock, AcquiredAt: created},
		{ID: 2, ProductName: "Mug", Condition: stock.ConditionNew, SalePrice: 2000, Quantity: 4, Status: stock.StatusInStock, AcquiredAt: created.Add(72 * time.Hour)},
		{ID: 3, ProductName: "Mug", Condition: stock.ConditionNew, SalePrice: 2000, Quantity: 4, Status: stock.StatusInStock, AcquiredAt: created.Add(time.Hour)},
	}

	updated, changed := Reconcile(items, history, nil)
	require.True(t, changed)
	// Quantity difference 1 beats 7; among equals the closer acquisition wins.
	require.Equal(t, "T-003", updated[3])
	require.Len(t, updated, 1)
}

func TestReconcileConsumesEachItemOnce(t *testing.T) {
	created := time.Now()
	history := historyOf(Record{
		BatchCode: "T-004",
		CreatedAt: created,
		Items: []LineItem{
			sellLine("Plate", 1, 3000, stock.ConditionNew),
			sellLine("Plate", 1, 3000, stock.ConditionNew),
		},
	})
	items := []stock.Item{
		{ID: 1, ProductName: "Plate", Condition: stock.ConditionNew, SalePrice: 3000, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created},
		{ID: 2, ProductName: "Plate", Condition: stock.ConditionNew, SalePrice: 3000, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created},
	}

	updated, changed := Reconcile(items, history, nil)
	require.True(t, changed)
	require.Len(t, updated, 2)
	require.Equal(t, "T-004", updated[1])
	require.Equal(t, "T-004", updated[2])
}

func TestReconcileProcessesNewestBatchFirst(t *testing.T) {
	line := sellLine("Kettle", 1, 7000, stock.ConditionNew)
	older := Record{BatchCode: "T-001", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Items: []LineItem{line}}
	newer := Record{BatchCode: "T-005", CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Items: []LineItem{line}}
	items := []stock.Item{
		{ID: 9, ProductName: "Kettle", Condition: stock.ConditionNew, SalePrice: 7000, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: newer.CreatedAt},
	}

	updated, changed := Reconcile(items, historyOf(older, newer), nil)
	require.True(t, changed)
	require.Equal(t, "T-005", updated[9])
}

func TestReconcileIgnoresKeepLinesAndSoldItems(t *testing.T) {
	created := time.Now()
	history := historyOf(Record{
		BatchCode: "T-006",
		CreatedAt: created,
		Items: []LineItem{
			{ProductName: "Chair", Quantity: 1, Condition: stock.ConditionNew, Disposition: DispositionKeep},
		},
	})
	items := []stock.Item{
		{ID: 1, ProductName: "Chair", Condition: stock.ConditionNew, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created},
		{ID: 2, ProductName: "Chair", Condition: stock.ConditionNew, Quantity: 1, Status: stock.StatusSold, SalePrice: 4000, AcquiredAt: created},
	}

	_, changed := Reconcile(items, history, nil)
	require.False(t, changed)
}

func TestReconcilePreservesExistingMapEntries(t *testing.T) {
	created := time.Now()
	history := historyOf(Record{
		BatchCode: "T-007",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Bowl", 1, 1500, stock.ConditionNew)},
	})
	items := []stock.Item{
		{ID: 5, ProductName: "Bowl", Condition: stock.ConditionNew, SalePrice: 1500, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created},
	}
	current := map[int64]string{99: "T-002"}

	updated, changed := Reconcile(items, history, current)
	require.True(t, changed)
	require.Equal(t, "T-002", updated[99])
	require.Equal(t, "T-007", updated[5])
	// The input map is not mutated.
	require.Len(t, current, 1)
}

func TestReconcilerRunPersistsOnlyOnChange(t *testing.T) {
	created := time.Now()
	items := newMemStockRepo()
	ctx := context.Background()
	lot, _ := items.Create(ctx, stock.Item{ProductName: "Globe", Condition: stock.ConditionNew, SalePrice: 11000, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created})

	batches := &memBatchRepo{}
	_, _ = batches.Create(ctx, Record{
		BatchCode: "T-001",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Globe", 1, 11000, stock.ConditionNew)},
	})
	cache := newMemSideCache()

	rec := NewReconciler(items, batches, cache, nil)
	tagged, err := rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tagged)
	require.Equal(t, "T-001", cache.refs[lot.ID])

	// Second pass is a no-op: the tag now lives in the map.
	tagged, err = rec.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, tagged)
}

type flakyLoadCache struct {
	*memSideCache
	loadErr error
}

func (c *flakyLoadCache) Load(ctx context.Context) (map[int64]string, error) {
	if c.loadErr != nil {
		err := c.loadErr
		c.loadErr = nil
		return nil, err
	}
	return c.memSideCache.Load(ctx)
}

func TestReconcilerRunAbortsWhenSideMapLoadFails(t *testing.T) {
	created := time.Now()
	ctx := context.Background()
	items := newMemStockRepo()
	_, _ = items.Create(ctx, stock.Item{ProductName: "Globe", Condition: stock.ConditionNew, SalePrice: 11000, Quantity: 1, Status: stock.StatusInStock, AcquiredAt: created})

	batches := &memBatchRepo{}
	_, _ = batches.Create(ctx, Record{
		BatchCode: "T-001",
		CreatedAt: created,
		Items:     []LineItem{sellLine("Globe", 1, 11000, stock.ConditionNew)},
	})

	cache := &flakyLoadCache{
		memSideCache: newMemSideCache(),
		loadErr:      errors.New("redis: connection refused"),
	}
	// A tag that only lives in the map: its item is long sold and would
	// never be re-assigned by a fresh pass.
	cache.refs[999] = "T-001"

	rec := NewReconciler(items, batches, cache, nil)
	tagged, err := rec.Run(ctx)
	require.Error(t, err)
	require.Zero(t, tagged)
	// Nothing was saved; the sold item's tag survives the failed read.
	require.Equal(t, map[int64]string{999: "T-001"}, cache.refs)

	// Once the read recovers, the pass fills the gap and keeps the old entry.
	tagged, err = rec.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tagged)
	require.Equal(t, "T-001", cache.refs[999])
	require.Len(t, cache.refs, 2)
}
