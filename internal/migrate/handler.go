package migrate

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocktrail/stocktrail/internal/batch"
	"github.com/stocktrail/stocktrail/internal/platform/httpx"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// Handler exposes the one-shot import endpoint. Row validation happens in
// the service so that bad rows are skipped instead of failing the payload.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/import", h.runImport)
}

type legacyItemRequest struct {
	LocalID       string  `json:"local_id"`
	ProductName   string  `json:"product_name"`
	PurchasePrice float64 `json:"purchase_price"`
	SalePrice     float64 `json:"sale_price"`
	Quantity      int     `json:"quantity"`
	AcquiredAt    string  `json:"acquired_at"`
	SaleDate      string  `json:"sale_date"`
	Status        string  `json:"status"`
	Condition     string  `json:"condition"`
	BatchRef      string  `json:"batch_ref"`
}

type legacyBatchRequest struct {
	BatchCode        string           `json:"batch_code"`
	Type             string           `json:"type"`
	CreatedAt        string           `json:"created_at"`
	TotalPaid        float64          `json:"total_paid"`
	TotalSellRevenue float64          `json:"total_sell_revenue"`
	CashProfit       float64          `json:"cash_profit"`
	RetainedValue    float64          `json:"retained_value"`
	ItemsCount       int              `json:"items_count"`
	Items            []batch.LineItem `json:"items"`
}

type importRequest struct {
	Items    []legacyItemRequest  `json:"items"`
	Batches  []legacyBatchRequest `json:"batches"`
	BatchMap map[string]string    `json:"batch_map"`
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	payload := Payload{BatchMap: req.BatchMap}
	for _, row := range req.Items {
		payload.Items = append(payload.Items, LegacyItem{
			LocalID:       row.LocalID,
			ProductName:   row.ProductName,
			PurchasePrice: row.PurchasePrice,
			SalePrice:     row.SalePrice,
			Quantity:      row.Quantity,
			AcquiredAt:    parseTime(row.AcquiredAt),
			SaleDate:      parseTime(row.SaleDate),
			Status:        stock.Status(row.Status),
			Condition:     stock.Condition(row.Condition),
			BatchRef:      row.BatchRef,
		})
	}
	for _, row := range req.Batches {
		payload.Batches = append(payload.Batches, LegacyBatch{
			BatchCode:        row.BatchCode,
			Type:             batch.Type(row.Type),
			CreatedAt:        parseTime(row.CreatedAt),
			TotalPaid:        row.TotalPaid,
			TotalSellRevenue: row.TotalSellRevenue,
			CashProfit:       row.CashProfit,
			RetainedValue:    row.RetainedValue,
			ItemsCount:       row.ItemsCount,
			Items:            row.Items,
		})
	}

	report, err := h.service.Import(r.Context(), payload)
	if err != nil {
		h.logger.Error("import failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Import Failed", "could not import payload")
		return
	}

	h.logger.Info("import completed",
		"items", report.ItemsImported,
		"batches", report.BatchesImported,
		"skipped_items", report.SkippedItems,
		"skipped_batches", report.SkippedBatches,
	)
	httpx.JSON(w, http.StatusOK, report)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
