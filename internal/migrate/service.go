// Package migrate imports client-local legacy records into the persistent
// store. It is a one-shot path: records lose their local identifiers, keep
// every identity-free field, and the side map is re-keyed to the ids the
// store assigns.
package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/stocktrail/stocktrail/internal/batch"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// LegacyItem is an item record as exported by the old client. LocalID is
// only meaningful inside the payload, as a key into BatchMap.
type LegacyItem struct {
	LocalID       string
	ProductName   string
	PurchasePrice float64
	SalePrice     float64
	Quantity      int
	AcquiredAt    time.Time
	SaleDate      time.Time
	Status        stock.Status
	Condition     stock.Condition
	BatchRef      string
}

// LegacyBatch is a batch summary as exported by the old client. Line
// snapshots may be missing entirely.
type LegacyBatch struct {
	BatchCode        string
	Type             batch.Type
	CreatedAt        time.Time
	TotalPaid        float64
	TotalSellRevenue float64
	CashProfit       float64
	RetainedValue    float64
	ItemsCount       int
	Items            []batch.LineItem
}

// Payload is everything the old client held locally.
type Payload struct {
	Items    []LegacyItem
	Batches  []LegacyBatch
	BatchMap map[string]string // legacy item id -> batch code
}

// Report summarises an import run.
type Report struct {
	ItemsImported   int `json:"items_imported"`
	BatchesImported int `json:"batches_imported"`
	MapEntries      int `json:"map_entries"`
	SkippedItems    int `json:"skipped_items"`
	SkippedBatches  int `json:"skipped_batches"`
}

// Service performs the import against the live stores.
type Service struct {
	items   stock.RepositoryPort
	batches batch.RepositoryPort
	cache   batch.SideCachePort
}

// NewService builds Service. cache may be nil when no side store exists yet.
func NewService(items stock.RepositoryPort, batches batch.RepositoryPort, cache batch.SideCachePort) *Service {
	return &Service{items: items, batches: batches, cache: cache}
}

// Import moves the payload into the store. Malformed rows are skipped and
// counted, never fatal; store failures abort and surface.
func (s *Service) Import(ctx context.Context, payload Payload) (Report, error) {
	var report Report

	valid := make([]LegacyItem, 0, len(payload.Items))
	rows := make([]stock.Item, 0, len(payload.Items))
	for _, legacy := range payload.Items {
		if legacy.ProductName == "" || legacy.Quantity < 1 {
			report.SkippedItems++
			continue
		}
		item := stock.Item{
			ProductName:   legacy.ProductName,
			PurchasePrice: legacy.PurchasePrice,
			SalePrice:     legacy.SalePrice,
			Quantity:      legacy.Quantity,
			AcquiredAt:    legacy.AcquiredAt,
			Status:        legacy.Status,
			Condition:     legacy.Condition,
			BatchRef:      legacy.BatchRef,
		}
		if item.Status == "" {
			item.Status = stock.StatusInStock
		}
		if item.Condition == "" {
			item.Condition = stock.ConditionNew
		}
		if item.AcquiredAt.IsZero() {
			item.AcquiredAt = time.Now()
		}
		if item.Status == stock.StatusSold {
			item.SaleDate = legacy.SaleDate
			if item.SaleDate.IsZero() {
				item.SaleDate = item.AcquiredAt
			}
		}
		valid = append(valid, legacy)
		rows = append(rows, item)
	}

	created, err := s.items.CreateMany(ctx, rows)
	if err != nil {
		return report, fmt.Errorf("migrate: import items: %w", err)
	}
	report.ItemsImported = len(created)

	for _, legacy := range payload.Batches {
		if legacy.BatchCode == "" {
			report.SkippedBatches++
			continue
		}
		record := batch.Record{
			BatchCode:        legacy.BatchCode,
			Type:             legacy.Type,
			CreatedAt:        legacy.CreatedAt,
			TotalPaid:        legacy.TotalPaid,
			TotalSellRevenue: legacy.TotalSellRevenue,
			CashProfit:       legacy.CashProfit,
			RetainedValue:    legacy.RetainedValue,
			ItemsCount:       legacy.ItemsCount,
			Items:            legacy.Items,
		}
		if record.Type == "" {
			record.Type = batch.DeriveType(record.Items)
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now()
		}
		if _, err := s.batches.Create(ctx, record); err != nil {
			return report, fmt.Errorf("migrate: import batch %s: %w", legacy.BatchCode, err)
		}
		report.BatchesImported++
	}

	// Re-key the side map from legacy local ids to store-assigned ids. An
	// item's own explicit tag still wins over any map entry.
	if s.cache != nil && len(payload.BatchMap) > 0 {
		tags := make(map[int64]string)
		for i, legacy := range valid {
			code, ok := payload.BatchMap[legacy.LocalID]
			if !ok || code == "" {
				continue
			}
			tags[created[i].ID] = code
		}
		if len(tags) > 0 {
			if err := s.cache.SetTags(ctx, tags); err != nil {
				return report, fmt.Errorf("migrate: import side map: %w", err)
			}
			report.MapEntries = len(tags)
		}
	}

	return report, nil
}
