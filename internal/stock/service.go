package stock

import (
	"context"
	"fmt"
	"time"
)

// RepositoryPort abstracts the item store for the service. Implementations
// surface structured errors; ErrNotFound is the only sentinel callers branch
// on.
type RepositoryPort interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id int64) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	CreateMany(ctx context.Context, items []Item) ([]Item, error)
	Update(ctx context.Context, id int64, update ItemUpdate) error
	Delete(ctx context.Context, id int64) error
}

// RefSource loads the item-to-batch side map used to resolve batch
// references for rows that carry no explicit tag.
type RefSource interface {
	Load(ctx context.Context) (map[int64]string, error)
}

// Service governs item lifecycle transitions. All writes are sequential and
// last-write-wins; a failure mid-operation leaves earlier writes in place.
type Service struct {
	repo RepositoryPort
	refs RefSource
	now  func() time.Time
}

// NewService builds Service. refs may be nil, in which case only explicit
// batch tags are considered during return merging.
func NewService(repo RepositoryPort, refs RefSource) *Service {
	return &Service{repo: repo, refs: refs, now: time.Now}
}

// List returns every item record.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// Create validates and stores a new item.
func (s *Service) Create(ctx context.Context, input CreateInput) (Item, error) {
	if input.ProductName == "" {
		return Item{}, ErrMissingName
	}
	if input.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if input.Condition == "" {
		input.Condition = ConditionNew
	}
	if !input.Condition.Valid() {
		return Item{}, ErrUnknownCondition
	}
	if input.Status == "" {
		input.Status = StatusInStock
	}
	item := Item{
		ProductName:   input.ProductName,
		PurchasePrice: input.PurchasePrice,
		SalePrice:     input.SalePrice,
		Quantity:      input.Quantity,
		AcquiredAt:    input.AcquiredAt,
		Status:        input.Status,
		Condition:     input.Condition,
		BatchRef:      input.BatchRef,
	}
	if item.AcquiredAt.IsZero() {
		item.AcquiredAt = s.now()
	}
	// Sale date present iff sold.
	if item.Status == StatusSold {
		item.SaleDate = input.SaleDate
		if item.SaleDate.IsZero() {
			item.SaleDate = s.now()
		}
	}
	return s.repo.Create(ctx, item)
}

// Sell records a full or partial sale from a stock lot. A partial sale
// splits the lot: the source shrinks in place and a new sold record with its
// own identity captures the sale. A full sale deletes the source.
func (s *Service) Sell(ctx context.Context, id int64, input SellInput) (Item, error) {
	if input.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusInStock {
		return Item{}, ErrNotInStock
	}
	if input.Quantity > item.Quantity {
		return Item{}, ErrInsufficientStock
	}

	sold := Item{
		ProductName:   item.ProductName,
		PurchasePrice: item.PurchasePrice,
		SalePrice:     input.UnitSalePrice,
		Quantity:      input.Quantity,
		AcquiredAt:    item.AcquiredAt,
		SaleDate:      s.now(),
		Status:        StatusSold,
		Condition:     item.Condition,
		BatchRef:      item.BatchRef,
	}
	sold, err = s.repo.Create(ctx, sold)
	if err != nil {
		return Item{}, fmt.Errorf("stock: create sold record: %w", err)
	}

	if input.Quantity == item.Quantity {
		if err := s.repo.Delete(ctx, id); err != nil {
			return Item{}, fmt.Errorf("stock: delete exhausted lot: %w", err)
		}
		return sold, nil
	}
	remaining := item.Quantity - input.Quantity
	if err := s.repo.Update(ctx, id, ItemUpdate{Quantity: &remaining}); err != nil {
		return Item{}, fmt.Errorf("stock: shrink lot: %w", err)
	}
	return sold, nil
}

// Return moves a sold record back into stock. When an existing in-stock lot
// matches on product name, purchase price, condition and resolved batch
// reference, the returned quantity merges into that lot and the sold record
// is deleted. Otherwise the sold record converts in place.
func (s *Service) Return(ctx context.Context, id int64, input ReturnInput) (Item, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusSold {
		return Item{}, ErrNotSold
	}

	refs := s.loadRefs(ctx)
	items, err := s.repo.List(ctx)
	if err != nil {
		return Item{}, err
	}

	itemRef := item.ResolvedBatchRef(refs)
	for _, other := range items {
		if other.ID == id || other.Status != StatusInStock {
			continue
		}
		if other.ProductName != item.ProductName ||
			other.PurchasePrice != item.PurchasePrice ||
			other.Condition != item.Condition ||
			other.ResolvedBatchRef(refs) != itemRef {
			continue
		}
		merged := other.Quantity + item.Quantity
		if err := s.repo.Update(ctx, other.ID, ItemUpdate{Quantity: &merged}); err != nil {
			return Item{}, fmt.Errorf("stock: merge returned lot: %w", err)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return Item{}, fmt.Errorf("stock: delete returned record: %w", err)
		}
		other.Quantity = merged
		return other, nil
	}

	inStock := StatusInStock
	update := ItemUpdate{Status: &inStock, ClearSaleDate: true, SalePrice: input.SalePrice}
	if err := s.repo.Update(ctx, id, update); err != nil {
		return Item{}, fmt.Errorf("stock: convert returned record: %w", err)
	}
	item.Status = StatusInStock
	item.SaleDate = time.Time{}
	if input.SalePrice != nil {
		item.SalePrice = *input.SalePrice
	}
	return item, nil
}

// Update applies field-level edits without changing identity or status.
func (s *Service) Update(ctx context.Context, id int64, update ItemUpdate) (Item, error) {
	if update.Quantity != nil && *update.Quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if update.Condition != nil && !update.Condition.Valid() {
		return Item{}, ErrUnknownCondition
	}
	if update.ProductName != nil && *update.ProductName == "" {
		return Item{}, ErrMissingName
	}
	// Status transitions go through Sell/Return, not edits.
	update.Status = nil
	update.SaleDate = nil
	update.ClearSaleDate = false
	if err := s.repo.Update(ctx, id, update); err != nil {
		return Item{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an item by explicit user action.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) loadRefs(ctx context.Context) map[int64]string {
	if s.refs == nil {
		return nil
	}
	refs, err := s.refs.Load(ctx)
	if err != nil {
		// The side map is a lookup aid; a cache miss must not block a return.
		return nil
	}
	return refs
}
