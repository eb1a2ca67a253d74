// Package e2e runs the full purchase-to-sale lifecycle against in-memory
// stores and a real redis side cache.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stocktrail/stocktrail/internal/batch"
	"github.com/stocktrail/stocktrail/internal/stock"
	_ "github.com/stocktrail/stocktrail/testing"
)

type itemStore struct {
	nextID int64
	items  []stock.Item
}

func (s *itemStore) List(ctx context.Context) ([]stock.Item, error) {
	out := make([]stock.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *itemStore) Get(ctx context.Context, id int64) (stock.Item, error) {
	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return stock.Item{}, stock.ErrNotFound
}

func (s *itemStore) Create(ctx context.Context, item stock.Item) (stock.Item, error) {
	s.nextID++
	item.ID = s.nextID
	s.items = append(s.items, item)
	return item, nil
}

func (s *itemStore) CreateMany(ctx context.Context, items []stock.Item) ([]stock.Item, error) {
	created := make([]stock.Item, 0, len(items))
	for _, item := range items {
		stored, _ := s.Create(ctx, item)
		created = append(created, stored)
	}
	return created, nil
}

func (s *itemStore) Update(ctx context.Context, id int64, update stock.ItemUpdate) error {
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if update.ProductName != nil {
			s.items[i].ProductName = *update.ProductName
		}
		if update.PurchasePrice != nil {
			s.items[i].PurchasePrice = *update.PurchasePrice
		}
		if update.SalePrice != nil {
			s.items[i].SalePrice = *update.SalePrice
		}
		if update.Quantity != nil {
			s.items[i].Quantity = *update.Quantity
		}
		if update.AcquiredAt != nil {
			s.items[i].AcquiredAt = *update.AcquiredAt
		}
		if update.Condition != nil {
			s.items[i].Condition = *update.Condition
		}
		if update.Status != nil {
			s.items[i].Status = *update.Status
		}
		if update.BatchRef != nil {
			s.items[i].BatchRef = *update.BatchRef
		}
		if update.SaleDate != nil {
			s.items[i].SaleDate = *update.SaleDate
		}
		if update.ClearSaleDate {
			s.items[i].SaleDate = time.Time{}
		}
		return nil
	}
	return stock.ErrNotFound
}

func (s *itemStore) Delete(ctx context.Context, id int64) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return stock.ErrNotFound
}

type batchStore struct {
	nextID  int64
	records []batch.Record
}

func (s *batchStore) List(ctx context.Context) ([]batch.Record, error) {
	out := make([]batch.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *batchStore) Get(ctx context.Context, id int64) (batch.Record, error) {
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return batch.Record{}, batch.ErrNotFound
}

func (s *batchStore) Count(ctx context.Context) (int, error) {
	return len(s.records), nil
}

func (s *batchStore) Create(ctx context.Context, record batch.Record) (batch.Record, error) {
	s.nextID++
	record.ID = s.nextID
	s.records = append(s.records, record)
	return record, nil
}

func (s *batchStore) Delete(ctx context.Context, id int64) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return batch.ErrNotFound
}

func TestPurchaseToSaleLifecycle(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := batch.NewSideCache(client, time.Minute)
	items := &itemStore{}
	batches := &batchStore{}

	batchSvc := batch.NewService(batches, items, cache)
	stockSvc := stock.NewService(items, cache)
	reconciler := batch.NewReconciler(items, batches, cache, nil)

	// A mixed batch: phones to resell, a tablet kept for personal use.
	record, err := batchSvc.Materialize(ctx, batch.MaterializeInput{
		TotalPaid: 90000,
		Lines: []batch.LineItem{
			{ProductName: "Pixel 6", Quantity: 2, ListedUnitPrice: 40000, UnitSalePrice: 55000, Condition: stock.ConditionLightlyUsed, Disposition: batch.DispositionSell},
			{ProductName: "Galaxy Tab", Quantity: 1, ListedUnitPrice: 20000, Condition: stock.ConditionUsed, Disposition: batch.DispositionKeep},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "T-001", record.BatchCode)
	require.Equal(t, batch.TypeMixed, record.Type)

	stored, err := items.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	lot := stored[0]
	require.Equal(t, 2, lot.Quantity)
	require.Equal(t, "T-001", lot.BatchRef)

	// Partial sale splits the lot into a sold record and a remainder.
	sold, err := stockSvc.Sell(ctx, lot.ID, stock.SellInput{Quantity: 1, UnitSalePrice: 56000})
	require.NoError(t, err)
	require.Equal(t, stock.StatusSold, sold.Status)

	stored, err = items.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// A legacy row with no tag: same product, same condition. One pass of
	// the reconciler maps it back to T-001.
	legacy, err := items.Create(ctx, stock.Item{
		ProductName: "pixel  6",
		Quantity:    2,
		SalePrice:   55000,
		Status:      stock.StatusInStock,
		Condition:   stock.ConditionLightlyUsed,
		AcquiredAt:  time.Now(),
	})
	require.NoError(t, err)

	tagged, err := reconciler.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tagged)

	refs, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "T-001", refs[legacy.ID])

	// A second pass finds nothing new.
	tagged, err = reconciler.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, tagged)

	// Return the sold unit; it merges back into the remaining lot.
	returned, err := stockSvc.Return(ctx, sold.ID, stock.ReturnInput{})
	require.NoError(t, err)
	require.Equal(t, stock.StatusInStock, returned.Status)
	require.Equal(t, 2, returned.Quantity)

	// Deleting the batch removes its tagged items and its map entries.
	require.NoError(t, batchSvc.Delete(ctx, record.ID))

	stored, err = items.List(ctx)
	require.NoError(t, err)
	require.Empty(t, stored)

	refs, err = cache.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, refs)
}
