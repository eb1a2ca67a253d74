package stock

import (
	"errors"
	"time"
)

// Status tracks where an item sits in its lifecycle. There is no terminal
// state beyond these two; an exhausted lot is deleted, not archived.
type Status string

const (
	// StatusInStock marks inventory on hand.
	StatusInStock Status = "in_stock"
	// StatusSold marks a completed sale record.
	StatusSold Status = "sold"
)

// Condition describes the physical state of the goods in a lot.
type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionLightlyUsed Condition = "lightly_used"
	ConditionUsed        Condition = "used"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLightlyUsed, ConditionUsed:
		return true
	}
	return false
}

// Item is a persisted inventory or sale record. A lot with Quantity > 1
// represents physically identical units sharing product, cost, condition
// and batch origin.
type Item struct {
	ID            int64
	ProductName   string
	PurchasePrice float64
	SalePrice     float64
	Quantity      int
	AcquiredAt    time.Time
	SaleDate      time.Time
	Status        Status
	Condition     Condition
	BatchRef      string
}

// ResolvedBatchRef returns the item's explicit batch tag when present,
// falling back to the side map. The explicit tag always wins; the map is a
// lookup aid for legacy rows that predate the batch_ref column.
func (i Item) ResolvedBatchRef(refs map[int64]string) string {
	if i.BatchRef != "" {
		return i.BatchRef
	}
	return refs[i.ID]
}

// ItemUpdate is a partial field set applied to a stored item. Nil fields
// are left untouched; ClearSaleDate forces sale_date to NULL since a nil
// SaleDate alone cannot express that.
type ItemUpdate struct {
	ProductName   *string
	PurchasePrice *float64
	SalePrice     *float64
	Quantity      *int
	AcquiredAt    *time.Time
	Condition     *Condition
	Status        *Status
	BatchRef      *string
	SaleDate      *time.Time
	ClearSaleDate bool
}

// CreateInput describes a new item created directly, outside of batch
// materialization.
type CreateInput struct {
	ProductName   string
	PurchasePrice float64
	SalePrice     float64
	Quantity      int
	AcquiredAt    time.Time
	SaleDate      time.Time
	Status        Status
	Condition     Condition
	BatchRef      string
}

// SellInput describes a full or partial sale from a stock lot.
type SellInput struct {
	Quantity      int
	UnitSalePrice float64
}

// ReturnInput optionally adjusts the sale price while moving a sold record
// back into stock.
type ReturnInput struct {
	SalePrice *float64
}

// ErrNotFound indicates a missing item row.
var ErrNotFound = errors.New("stock: item not found")

// ErrInsufficientStock is returned when a sale asks for more units than the
// lot holds. The lot is left untouched.
var ErrInsufficientStock = errors.New("stock: sell quantity exceeds stock")

// ErrInvalidQuantity indicates a quantity below 1.
var ErrInvalidQuantity = errors.New("stock: quantity must be at least 1")

// ErrUnknownCondition indicates a condition outside the known set.
var ErrUnknownCondition = errors.New("stock: unknown condition")

// ErrNotInStock is returned when a sale targets a record that is not in stock.
var ErrNotInStock = errors.New("stock: item is not in stock")

// ErrNotSold is returned when a return targets a record that is not sold.
var ErrNotSold = errors.New("stock: item is not sold")

// ErrMissingName indicates an empty product name.
var ErrMissingName = errors.New("stock: product name required")
