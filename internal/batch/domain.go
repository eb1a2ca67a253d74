// Package batch implements bulk purchase economics: cost allocation over
// line items, materialization of the resale portion into stock, and
// best-effort recovery of batch tags on legacy inventory rows.
package batch

import (
	"errors"
	"time"

	"github.com/stocktrail/stocktrail/internal/stock"
)

// Disposition classifies a batch line: intended for resale or retained by
// the purchaser.
type Disposition string

const (
	DispositionSell Disposition = "sell"
	DispositionKeep Disposition = "keep"
)

// Valid reports whether d is a known disposition.
func (d Disposition) Valid() bool {
	return d == DispositionSell || d == DispositionKeep
}

// Type summarises a batch by the dispositions of its lines. It is derived,
// never stored independently of its inputs.
type Type string

const (
	TypeAllSell     Type = "all_sell"
	TypeMixed       Type = "mixed"
	TypeAllRetained Type = "all_retained"
)

// LineItem is a batch-scoped line. It is transient until the batch is
// materialized, at which point a snapshot persists inside the batch record.
type LineItem struct {
	ID              string          `json:"id"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	ListedUnitPrice float64         `json:"listed_unit_price"`
	UnitSalePrice   float64         `json:"unit_sale_price"`
	Condition       stock.Condition `json:"condition"`
	Disposition     Disposition     `json:"disposition"`
}

// Record is a persisted batch summary. Items may be empty for legacy rows
// that predate line snapshots.
type Record struct {
	ID               int64
	BatchCode        string
	Type             Type
	CreatedAt        time.Time
	TotalPaid        float64
	TotalSellRevenue float64
	CashProfit       float64
	RetainedValue    float64
	ItemsCount       int
	Items            []LineItem
}

// DeriveType classifies lines per the batch type invariant: all_retained
// when no line sells, all_sell when every line sells, mixed otherwise.
func DeriveType(lines []LineItem) Type {
	sell := 0
	for _, line := range lines {
		if line.Disposition == DispositionSell {
			sell++
		}
	}
	switch sell {
	case 0:
		return TypeAllRetained
	case len(lines):
		return TypeAllSell
	default:
		return TypeMixed
	}
}

// ErrNotFound indicates a missing batch row.
var ErrNotFound = errors.New("batch: record not found")

// ErrNoLineItems indicates a batch with no lines.
var ErrNoLineItems = errors.New("batch: at least one line item required")

// ErrInvalidLine indicates a malformed line item.
var ErrInvalidLine = errors.New("batch: invalid line item")
