package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocktrail/stocktrail/internal/platform/db"
)

// Repository persists items in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `id, product_name, purchase_price, sale_price, quantity, acquired_at, sale_date, status, condition, batch_ref`

// List returns all item records, newest acquisitions first.
func (r *Repository) List(ctx context.Context) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY acquired_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("stock: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get fetches a single item by id.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("stock: get item: %w", err)
	}
	return item, nil
}

// Create inserts one item and returns it with the store-assigned id.
func (r *Repository) Create(ctx context.Context, item Item) (Item, error) {
	return insertItem(ctx, r.db, item)
}

// CreateMany inserts items inside a single transaction, so a bulk import is
// all-or-nothing.
func (r *Repository) CreateMany(ctx context.Context, items []Item) ([]Item, error) {
	created := make([]Item, 0, len(items))
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, item := range items {
			stored, err := insertItem(ctx, tx, item)
			if err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertItem(ctx context.Context, q rowQuerier, item Item) (Item, error) {
	query := `INSERT INTO items (product_name, purchase_price, sale_price, quantity, acquired_at, sale_date, status, condition, batch_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := q.QueryRow(ctx, query,
		item.ProductName,
		item.PurchasePrice,
		nullFloat(item.SalePrice, item.SalePrice != 0 || item.Status == StatusSold),
		item.Quantity,
		item.AcquiredAt,
		nullTime(item.SaleDate),
		string(item.Status),
		string(item.Condition),
		item.BatchRef,
	).Scan(&item.ID)
	if err != nil {
		return Item{}, fmt.Errorf("stock: create item: %w", err)
	}
	return item, nil
}

// Update applies a partial field set to one row.
func (r *Repository) Update(ctx context.Context, id int64, update ItemUpdate) error {
	sets := []string{}
	args := []interface{}{}
	argCount := 0

	set := func(column string, value interface{}) {
		argCount++
		sets = append(sets, column+` = $`+strconv.Itoa(argCount))
		args = append(args, value)
	}

	if update.ProductName != nil {
		set("product_name", *update.ProductName)
	}
	if update.PurchasePrice != nil {
		set("purchase_price", *update.PurchasePrice)
	}
	if update.SalePrice != nil {
		set("sale_price", *update.SalePrice)
	}
	if update.Quantity != nil {
		set("quantity", *update.Quantity)
	}
	if update.AcquiredAt != nil {
		set("acquired_at", *update.AcquiredAt)
	}
	if update.Condition != nil {
		set("condition", string(*update.Condition))
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.BatchRef != nil {
		set("batch_ref", *update.BatchRef)
	}
	if update.SaleDate != nil {
		set("sale_date", *update.SaleDate)
	} else if update.ClearSaleDate {
		sets = append(sets, `sale_date = NULL`)
	}
	if len(sets) == 0 {
		return nil
	}

	argCount++
	query := `UPDATE items SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(argCount)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stock: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one row by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("stock: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item      Item
		salePrice pgtype.Float8
		saleDate  pgtype.Timestamptz
		status    string
		condition string
	)
	err := row.Scan(
		&item.ID,
		&item.ProductName,
		&item.PurchasePrice,
		&salePrice,
		&item.Quantity,
		&item.AcquiredAt,
		&saleDate,
		&status,
		&condition,
		&item.BatchRef,
	)
	if err != nil {
		return Item{}, err
	}
	if salePrice.Valid {
		item.SalePrice = salePrice.Float64
	}
	if saleDate.Valid {
		item.SaleDate = saleDate.Time
	}
	item.Status = Status(status)
	item.Condition = Condition(condition)
	return item, nil
}

func nullFloat(v float64, valid bool) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: valid}
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
