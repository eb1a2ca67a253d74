package insights

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocktrail/stocktrail/internal/stock"
)

func TestComputeEmpty(t *testing.T) {
	require.Equal(t, Summary{}, Compute(nil))
}

func TestComputeAggregates(t *testing.T) {
	items := []stock.Item{
		{Status: stock.StatusInStock, PurchasePrice: 40000, Quantity: 3},
		{Status: stock.StatusInStock, PurchasePrice: 10000, Quantity: 1},
		{Status: stock.StatusSold, PurchasePrice: 20000, SalePrice: 32000, Quantity: 2},
		{Status: stock.StatusSold, PurchasePrice: 5000, SalePrice: 4000, Quantity: 1},
	}
	summary := Compute(items)

	require.InDelta(t, 130000, summary.StockValue, 1e-9)
	require.Equal(t, 2, summary.ItemsInStock)
	require.InDelta(t, 68000, summary.TotalRevenue, 1e-9)
	require.InDelta(t, 23000, summary.NetProfit, 1e-9) // loss-making sales count too
	require.Equal(t, 3, summary.UnitsSold)
	require.Equal(t, 2, summary.ItemsSold)
}
