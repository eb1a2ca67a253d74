// Package pricing implements blended cost allocation for bulk purchases.
//
// A batch is paid for with a single amount that rarely equals the sum of the
// listed per-item prices. The allocator distributes that payment across the
// line items proportionally to their listed prices, which yields each item's
// true ("adjusted") unit cost and, from there, the batch economics.
package pricing

import "github.com/shopspring/decimal"

// Line is a single batch line as the allocator sees it.
type Line struct {
	ID              string
	Quantity        int
	ListedUnitPrice float64
	UnitSalePrice   float64
	Keep            bool
}

// LineResult carries the per-line allocation outcome, keyed by Line.ID.
type LineResult struct {
	ID               string
	AdjustedUnitCost float64
	MarginPercent    float64
}

// Result aggregates batch economics after allocation.
type Result struct {
	AllocationFactor       float64
	ListedSubtotal         float64
	TotalSellRevenue       float64
	SellCostAdjusted       float64
	ExpectedProfit         float64
	RetainedValue          float64
	EffectiveCostToRecover float64
	TotalEconomicValue     float64
	Lines                  []LineResult
}

var hundred = decimal.NewFromInt(100)

// Allocate distributes totalPaid across lines proportionally to listed
// prices. A zero listed subtotal degrades to an allocation factor of 1 so
// degenerate input passes through undistorted. Negative or zero totalPaid is
// accepted arithmetically; validating it is the caller's concern.
func Allocate(totalPaid float64, lines []Line) Result {
	paid := decimal.NewFromFloat(totalPaid)

	subtotal := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(decimal.NewFromFloat(line.ListedUnitPrice).Mul(qty))
	}

	factor := decimal.NewFromInt(1)
	if subtotal.IsPositive() {
		factor = paid.Div(subtotal)
	}

	var (
		sellRevenue = decimal.Zero
		sellCost    = decimal.Zero
		retained    = decimal.Zero
		lineResults = make([]LineResult, 0, len(lines))
	)
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		adjusted := decimal.NewFromFloat(line.ListedUnitPrice).Mul(factor)
		extended := adjusted.Mul(qty)

		res := LineResult{ID: line.ID, AdjustedUnitCost: adjusted.InexactFloat64()}
		if line.Keep {
			retained = retained.Add(extended)
		} else {
			sellRevenue = sellRevenue.Add(decimal.NewFromFloat(line.UnitSalePrice).Mul(qty))
			sellCost = sellCost.Add(extended)
			if adjusted.IsPositive() {
				margin := decimal.NewFromFloat(line.UnitSalePrice).Sub(adjusted).Div(adjusted).Mul(hundred)
				res.MarginPercent = margin.InexactFloat64()
			}
		}
		lineResults = append(lineResults, res)
	}

	profit := sellRevenue.Sub(sellCost)
	toRecover := paid.Sub(retained)
	if toRecover.IsNegative() {
		toRecover = decimal.Zero
	}

	return Result{
		AllocationFactor:       factor.InexactFloat64(),
		ListedSubtotal:         subtotal.InexactFloat64(),
		TotalSellRevenue:       sellRevenue.InexactFloat64(),
		SellCostAdjusted:       sellCost.InexactFloat64(),
		ExpectedProfit:         profit.InexactFloat64(),
		RetainedValue:          retained.InexactFloat64(),
		EffectiveCostToRecover: toRecover.InexactFloat64(),
		TotalEconomicValue:     profit.Add(retained).InexactFloat64(),
		Lines:                  lineResults,
	}
}

// RoundUnit rounds an amount to the smallest currency unit. The domain deals
// in whole units only, so persisted costs carry no sub-unit fraction.
func RoundUnit(v float64) float64 {
	return decimal.NewFromFloat(v).Round(0).InexactFloat64()
}
