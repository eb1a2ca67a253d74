package batch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/platform/httpx"
	"github.com/stocktrail/stocktrail/internal/pricing"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// Backfill is the capability behind the manual reconcile endpoint. A nil
// Backfill means the feature is disabled.
type Backfill interface {
	Run(ctx context.Context) (int, error)
}

// Handler wires the batch endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	backfill  Backfill
	validator *validator.Validate
	metrics   *observability.Metrics
}

// NewHandler constructs the batch handler.
func NewHandler(logger *slog.Logger, service *Service, backfill Backfill, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, backfill: backfill, validator: validator.New(), metrics: metrics}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/batches", h.list)
	r.Post("/batches", h.materialize)
	r.Post("/batches/preview", h.preview)
	r.Post("/batches/reconcile", h.reconcile)
	r.Delete("/batches/{id}", h.delete)
}

type lineItemRequest struct {
	ProductName     string  `json:"product_name" validate:"required,max=300"`
	Quantity        int     `json:"quantity" validate:"required,gte=1"`
	ListedUnitPrice float64 `json:"listed_unit_price" validate:"gte=0"`
	UnitSalePrice   float64 `json:"unit_sale_price" validate:"gte=0"`
	Condition       string  `json:"condition" validate:"omitempty,oneof=new lightly_used used"`
	Disposition     string  `json:"disposition" validate:"required,oneof=sell keep"`
}

type materializeRequest struct {
	TotalPaid float64           `json:"total_paid" validate:"gte=0"`
	Lines     []lineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

type recordResponse struct {
	ID               int64      `json:"id"`
	BatchCode        string     `json:"batch_code"`
	Type             Type       `json:"batch_type"`
	CreatedAt        time.Time  `json:"created_at"`
	TotalPaid        float64    `json:"total_paid"`
	TotalSellRevenue float64    `json:"total_sell_revenue"`
	CashProfit       float64    `json:"cash_profit"`
	RetainedValue    float64    `json:"retained_value"`
	ItemsCount       int        `json:"items_count"`
	Items            []LineItem `json:"items"`
}

type previewResponse struct {
	Type                   Type                 `json:"batch_type"`
	AllocationFactor       float64              `json:"allocation_factor"`
	ListedSubtotal         float64              `json:"listed_subtotal"`
	TotalSellRevenue       float64              `json:"total_sell_revenue"`
	ExpectedProfit         float64              `json:"expected_profit"`
	RetainedValue          float64              `json:"retained_value"`
	EffectiveCostToRecover float64              `json:"effective_cost_to_recover"`
	TotalEconomicValue     float64              `json:"total_economic_value"`
	Lines                  []pricing.LineResult `json:"lines"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list batches failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordResponse(record))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeMaterialize(w, r)
	if !ok {
		return
	}
	result, batchType, err := h.service.Preview(input)
	if err != nil {
		h.respondError(w, "preview batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewResponse{
		Type:                   batchType,
		AllocationFactor:       result.AllocationFactor,
		ListedSubtotal:         result.ListedSubtotal,
		TotalSellRevenue:       result.TotalSellRevenue,
		ExpectedProfit:         result.ExpectedProfit,
		RetainedValue:          result.RetainedValue,
		EffectiveCostToRecover: result.EffectiveCostToRecover,
		TotalEconomicValue:     result.TotalEconomicValue,
		Lines:                  result.Lines,
	})
}

func (h *Handler) materialize(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeMaterialize(w, r)
	if !ok {
		return
	}
	record, err := h.service.Materialize(r.Context(), input)
	if err != nil {
		h.respondError(w, "materialize batch", err)
		return
	}
	h.metrics.BatchMaterialized()
	h.logger.Info("batch materialized",
		slog.String("batch_code", record.BatchCode),
		slog.Int("items_count", record.ItemsCount))
	httpx.JSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if h.backfill == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Reconciliation Disabled", "no legacy data backfill is configured")
		return
	}
	tagged, err := h.backfill.Run(r.Context())
	if err != nil {
		h.logger.Error("reconcile failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"tagged": tagged})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "batch id must be a positive integer")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeMaterialize(w http.ResponseWriter, r *http.Request) (MaterializeInput, bool) {
	var req materializeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return MaterializeInput{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return MaterializeInput{}, false
	}
	lines := make([]LineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineItem{
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			ListedUnitPrice: line.ListedUnitPrice,
			UnitSalePrice:   line.UnitSalePrice,
			Condition:       stock.Condition(line.Condition),
			Disposition:     Disposition(line.Disposition),
		})
	}
	return MaterializeInput{TotalPaid: req.TotalPaid, Lines: lines}, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoLineItems), errors.Is(err, ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toRecordResponse(record Record) recordResponse {
	return recordResponse{
		ID:               record.ID,
		BatchCode:        record.BatchCode,
		Type:             record.Type,
		CreatedAt:        record.CreatedAt,
		TotalPaid:        record.TotalPaid,
		TotalSellRevenue: record.TotalSellRevenue,
		CashProfit:       record.CashProfit,
		RetainedValue:    record.RetainedValue,
		ItemsCount:       record.ItemsCount,
		Items:            record.Items,
	}
}
