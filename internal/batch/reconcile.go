package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/pricing"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// Reconcile recovers batch references for in-stock items that carry no
// explicit tag, by fuzzy-matching them against historical batch lines.
// It returns the updated map and true when at least one new tag was
// assigned; otherwise nil and false, so callers can skip persisting an
// unchanged map.
//
// The pass is idempotent: it only fills gaps and never overwrites an item's
// own BatchRef or an existing map entry. Ambiguity resolves to the single
// best candidate or, when none qualifies, silently leaves the item untagged.
func Reconcile(items []stock.Item, history []Record, current map[int64]string) (map[int64]string, bool) {
	if len(items) == 0 || len(history) == 0 {
		return nil, false
	}

	pool := make([]stock.Item, 0, len(items))
	for _, item := range items {
		if item.Status != stock.StatusInStock || item.BatchRef != "" {
			continue
		}
		if _, tagged := current[item.ID]; tagged {
			continue
		}
		pool = append(pool, item)
	}
	if len(pool) == 0 {
		return nil, false
	}

	ordered := make([]Record, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	consumed := make(map[int64]bool)
	assigned := make(map[int64]string)
	for _, record := range ordered {
		for _, line := range record.Items {
			if line.Disposition != DispositionSell {
				continue
			}
			best := bestCandidate(pool, consumed, line, record)
			if best == nil {
				continue
			}
			assigned[best.ID] = record.BatchCode
			consumed[best.ID] = true
		}
	}
	if len(assigned) == 0 {
		return nil, false
	}

	updated := make(map[int64]string, len(current)+len(assigned))
	for id, code := range current {
		updated[id] = code
	}
	for id, code := range assigned {
		updated[id] = code
	}
	return updated, true
}

// bestCandidate picks one pool item for a historical sell line, by priority:
// exact rounded sale-price match, then smallest quantity difference, then
// smallest time distance to the batch creation.
func bestCandidate(pool []stock.Item, consumed map[int64]bool, line LineItem, record Record) *stock.Item {
	lineName := normalizeName(line.ProductName)
	linePrice := pricing.RoundUnit(line.UnitSalePrice)

	var best *stock.Item
	var bestPrice bool
	var bestQtyDiff int
	var bestTimeDiff int64

	for i := range pool {
		item := &pool[i]
		if consumed[item.ID] {
			continue
		}
		if normalizeName(item.ProductName) != lineName || item.Condition != line.Condition {
			continue
		}

		priceMatch := pricing.RoundUnit(item.SalePrice) == linePrice
		qtyDiff := item.Quantity - line.Quantity
		if qtyDiff < 0 {
			qtyDiff = -qtyDiff
		}
		timeDiff := item.AcquiredAt.Sub(record.CreatedAt).Nanoseconds()
		if timeDiff < 0 {
			timeDiff = -timeDiff
		}

		switch {
		case best == nil:
		case priceMatch != bestPrice:
			if !priceMatch {
				continue
			}
		case qtyDiff != bestQtyDiff:
			if qtyDiff > bestQtyDiff {
				continue
			}
		case timeDiff >= bestTimeDiff:
			continue
		}
		best = item
		bestPrice = priceMatch
		bestQtyDiff = qtyDiff
		bestTimeDiff = timeDiff
	}
	return best
}

// normalizeName lowercases and collapses internal whitespace so cosmetic
// differences do not break matching.
func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Reconciler runs the backfill pass against live stores. It exists for
// legacy rows that predate the batch_ref column and can be disabled once no
// such rows remain.
type Reconciler struct {
	items   stock.RepositoryPort
	batches RepositoryPort
	cache   SideCachePort
	metrics *observability.Metrics
}

// NewReconciler builds Reconciler.
func NewReconciler(items stock.RepositoryPort, batches RepositoryPort, cache SideCachePort, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{items: items, batches: batches, cache: cache, metrics: metrics}
}

// Run executes one reconciliation pass and returns the number of newly
// tagged items. Safe to re-run at any time.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	var (
		items   []stock.Item
		history []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.items.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = r.batches.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// A failed Load must abort the pass: Save rewrites the whole map, so
	// running against an empty current would drop every tag that is not
	// re-assigned this pass. Sold items are never candidates again.
	current := map[int64]string{}
	if r.cache != nil {
		loaded, err := r.cache.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("batch: load side map: %w", err)
		}
		if loaded != nil {
			current = loaded
		}
	}

	updated, changed := Reconcile(items, history, current)
	if !changed {
		return 0, nil
	}
	if r.cache != nil {
		if err := r.cache.Save(ctx, updated); err != nil {
			return 0, err
		}
	}
	tagged := len(updated) - len(current)
	r.metrics.ItemsReconciled(tagged)
	return tagged, nil
}
