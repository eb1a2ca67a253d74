package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stocktrail/stocktrail/internal/pricing"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// RepositoryPort abstracts the batch store for the service.
type RepositoryPort interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, record Record) (Record, error)
	Delete(ctx context.Context, id int64) error
}

// SideCachePort is the durable key-value side store holding the item-to-batch
// map and a fallback copy of the batch history. It is never authoritative.
type SideCachePort interface {
	Load(ctx context.Context) (map[int64]string, error)
	Save(ctx context.Context, refs map[int64]string) error
	SetTags(ctx context.Context, tags map[int64]string) error
	DeleteEntries(ctx context.Context, ids []int64) error
	CacheHistory(ctx context.Context, records []Record) error
	CachedHistory(ctx context.Context) ([]Record, error)
}

// Service coordinates batch pricing, materialization and cascade deletion.
type Service struct {
	repo  RepositoryPort
	items stock.RepositoryPort
	cache SideCachePort
	now   func() time.Time
}

// NewService builds Service. cache may be nil; the side index then simply
// stays cold.
func NewService(repo RepositoryPort, items stock.RepositoryPort, cache SideCachePort) *Service {
	return &Service{repo: repo, items: items, cache: cache, now: time.Now}
}

// MaterializeInput carries the priced batch as entered by the user.
type MaterializeInput struct {
	TotalPaid float64
	Lines     []LineItem
}

// Preview runs the allocator without persisting anything.
func (s *Service) Preview(input MaterializeInput) (pricing.Result, Type, error) {
	lines, err := prepareLines(input.Lines)
	if err != nil {
		return pricing.Result{}, "", err
	}
	return pricing.Allocate(input.TotalPaid, toPricingLines(lines)), DeriveType(lines), nil
}

// Materialize converts the sell-disposition lines into persistent stock and
// stores the batch summary. Writes are sequential; a failure after some item
// writes leaves those items in place and surfaces the error.
func (s *Service) Materialize(ctx context.Context, input MaterializeInput) (Record, error) {
	lines, err := prepareLines(input.Lines)
	if err != nil {
		return Record{}, err
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("batch: count history: %w", err)
	}
	code := fmt.Sprintf("T-%03d", count+1)

	alloc := pricing.Allocate(input.TotalPaid, toPricingLines(lines))
	adjustedByID := make(map[string]float64, len(alloc.Lines))
	for _, lr := range alloc.Lines {
		adjustedByID[lr.ID] = lr.AdjustedUnitCost
	}

	snapshot, err := s.items.List(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("batch: load inventory snapshot: %w", err)
	}
	refs := s.loadRefs(ctx)

	now := s.now()
	tags := make(map[int64]string)
	for _, line := range lines {
		if line.Disposition != DispositionSell {
			continue
		}
		adjusted := pricing.RoundUnit(adjustedByID[line.ID])

		merged := false
		for i := range snapshot {
			existing := &snapshot[i]
			if existing.Status != stock.StatusInStock ||
				existing.ProductName != line.ProductName ||
				existing.Condition != line.Condition ||
				pricing.RoundUnit(existing.PurchasePrice) != adjusted ||
				existing.ResolvedBatchRef(refs) != code {
				continue
			}
			quantity := existing.Quantity + line.Quantity
			update := stock.ItemUpdate{
				Quantity:  &quantity,
				SalePrice: &line.UnitSalePrice,
				Condition: &line.Condition,
				BatchRef:  &code,
			}
			if err := s.items.Update(ctx, existing.ID, update); err != nil {
				return Record{}, fmt.Errorf("batch: merge into lot %d: %w", existing.ID, err)
			}
			existing.Quantity = quantity
			existing.SalePrice = line.UnitSalePrice
			existing.BatchRef = code
			tags[existing.ID] = code
			merged = true
			break
		}
		if merged {
			continue
		}

		created, err := s.items.Create(ctx, stock.Item{
			ProductName:   line.ProductName,
			PurchasePrice: adjusted,
			SalePrice:     line.UnitSalePrice,
			Quantity:      line.Quantity,
			AcquiredAt:    now,
			Status:        stock.StatusInStock,
			Condition:     line.Condition,
			BatchRef:      code,
		})
		if err != nil {
			return Record{}, fmt.Errorf("batch: create stock lot: %w", err)
		}
		snapshot = append(snapshot, created)
		tags[created.ID] = code
	}

	record := Record{
		BatchCode:        code,
		Type:             DeriveType(lines),
		CreatedAt:        now,
		TotalPaid:        input.TotalPaid,
		TotalSellRevenue: alloc.TotalSellRevenue,
		CashProfit:       alloc.ExpectedProfit,
		RetainedValue:    alloc.RetainedValue,
		ItemsCount:       len(lines),
		Items:            lines,
	}
	record, err = s.repo.Create(ctx, record)
	if err != nil {
		return Record{}, fmt.Errorf("batch: persist record: %w", err)
	}

	if s.cache != nil && len(tags) > 0 {
		// The side index duplicates batch_ref as a guard for stores whose
		// schema predates the column. Its failure must not fail the batch.
		_ = s.cache.SetTags(ctx, tags)
	}
	return record, nil
}

// List returns batch history newest-first, refreshing the side-cache copy on
// success and falling back to it when the primary store is unreachable.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		if s.cache != nil {
			if cached, cacheErr := s.cache.CachedHistory(ctx); cacheErr == nil && cached != nil {
				return cached, nil
			}
		}
		return nil, fmt.Errorf("batch: list history: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.CacheHistory(ctx, records)
	}
	return records, nil
}

// Delete removes a batch and cascades to every item whose resolved batch
// reference equals its code, then drops the side-map entries for those items.
func (s *Service) Delete(ctx context.Context, id int64) error {
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("batch: delete record: %w", err)
	}

	items, err := s.items.List(ctx)
	if err != nil {
		return fmt.Errorf("batch: load inventory for cascade: %w", err)
	}
	refs := s.loadRefs(ctx)

	var removed []int64
	for _, item := range items {
		if item.ResolvedBatchRef(refs) != record.BatchCode {
			continue
		}
		if err := s.items.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("batch: cascade delete item %d: %w", item.ID, err)
		}
		removed = append(removed, item.ID)
	}
	if s.cache != nil && len(removed) > 0 {
		_ = s.cache.DeleteEntries(ctx, removed)
	}
	return nil
}

func (s *Service) loadRefs(ctx context.Context) map[int64]string {
	if s.cache == nil {
		return nil
	}
	refs, err := s.cache.Load(ctx)
	if err != nil {
		return nil
	}
	return refs
}

// prepareLines validates lines and assigns ephemeral ids where missing.
func prepareLines(lines []LineItem) ([]LineItem, error) {
	if len(lines) == 0 {
		return nil, ErrNoLineItems
	}
	out := make([]LineItem, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d: quantity must be at least 1", ErrInvalidLine, i+1)
		}
		if line.ProductName == "" {
			return nil, fmt.Errorf("%w: line %d: product name required", ErrInvalidLine, i+1)
		}
		if line.Condition == "" {
			line.Condition = stock.ConditionNew
		}
		if !line.Condition.Valid() {
			return nil, fmt.Errorf("%w: line %d: unknown condition", ErrInvalidLine, i+1)
		}
		if !line.Disposition.Valid() {
			return nil, fmt.Errorf("%w: line %d: disposition must be sell or keep", ErrInvalidLine, i+1)
		}
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		out[i] = line
	}
	return out, nil
}

func toPricingLines(lines []LineItem) []pricing.Line {
	out := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, pricing.Line{
			ID:              line.ID,
			Quantity:        line.Quantity,
			ListedUnitPrice: line.ListedUnitPrice,
			UnitSalePrice:   line.UnitSalePrice,
			Keep:            line.Disposition == DispositionKeep,
		})
	}
	return out
}
