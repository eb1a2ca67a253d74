package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists batch records in PostgreSQL. Line snapshots live in a
// jsonb column; the store stays agnostic of their shape.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const batchColumns = `id, batch_code, batch_type, created_at, total_paid, total_sell_revenue, cash_profit, retained_value, items_count, lines`

// List returns batch history newest-first.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("batch: list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("batch: scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Get fetches one batch by id.
func (r *Repository) Get(ctx context.Context, id int64) (Record, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	record, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("batch: get record: %w", err)
	}
	return record, nil
}

// Count returns the number of batch records, the basis for sequential batch
// codes.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM batches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("batch: count records: %w", err)
	}
	return count, nil
}

// Create inserts one batch record and returns it with the store-assigned id.
func (r *Repository) Create(ctx context.Context, record Record) (Record, error) {
	lines, err := json.Marshal(record.Items)
	if err != nil {
		return Record{}, fmt.Errorf("batch: marshal lines: %w", err)
	}
	query := `INSERT INTO batches (batch_code, batch_type, created_at, total_paid, total_sell_revenue, cash_profit, retained_value, items_count, lines)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err = r.db.QueryRow(ctx, query,
		record.BatchCode,
		string(record.Type),
		record.CreatedAt,
		record.TotalPaid,
		record.TotalSellRevenue,
		record.CashProfit,
		record.RetainedValue,
		record.ItemsCount,
		lines,
	).Scan(&record.ID)
	if err != nil {
		return Record{}, fmt.Errorf("batch: create record: %w", err)
	}
	return record, nil
}

// Delete removes one batch row by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("batch: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record    Record
		batchType string
		lines     []byte
	)
	err := row.Scan(
		&record.ID,
		&record.BatchCode,
		&batchType,
		&record.CreatedAt,
		&record.TotalPaid,
		&record.TotalSellRevenue,
		&record.CashProfit,
		&record.RetainedValue,
		&record.ItemsCount,
		&lines,
	)
	if err != nil {
		return Record{}, err
	}
	record.Type = Type(batchType)
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &record.Items); err != nil {
			return Record{}, fmt.Errorf("unmarshal lines: %w", err)
		}
	}
	return record, nil
}
