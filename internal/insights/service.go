// Package insights derives dashboard aggregates from the item set. Nothing
// here is stored: every read recomputes from scratch so arbitrary edits and
// deletes can never leave a counter drifting.
package insights

import (
	"context"

	"github.com/stocktrail/stocktrail/internal/stock"
)

// Summary holds the derived aggregate metrics.
type Summary struct {
	NetProfit    float64 `json:"net_profit"`
	TotalRevenue float64 `json:"total_revenue"`
	UnitsSold    int     `json:"units_sold"`
	StockValue   float64 `json:"stock_value"`
	ItemsInStock int     `json:"items_in_stock"`
	ItemsSold    int     `json:"items_sold"`
}

// Compute aggregates over the full item set.
func Compute(items []stock.Item) Summary {
	var summary Summary
	for _, item := range items {
		qty := float64(item.Quantity)
		switch item.Status {
		case stock.StatusSold:
			summary.TotalRevenue += item.SalePrice * qty
			summary.NetProfit += (item.SalePrice - item.PurchasePrice) * qty
			summary.UnitsSold += item.Quantity
			summary.ItemsSold++
		case stock.StatusInStock:
			summary.StockValue += item.PurchasePrice * qty
			summary.ItemsInStock++
		}
	}
	return summary
}

// Service reads the item store and computes summaries on demand.
type Service struct {
	items stock.RepositoryPort
}

// NewService builds Service.
func NewService(items stock.RepositoryPort) *Service {
	return &Service{items: items}
}

// Summary recomputes the aggregates from the current item set.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Compute(items), nil
}
