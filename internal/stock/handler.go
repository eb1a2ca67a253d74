package stock

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
)

// ReconcileEnqueuer schedules an opportunistic batch reconciliation pass.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context) error
}

// Handler wires the item endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	enqueue   ReconcileEnqueuer
	metrics   *observability.Metrics
}

// NewHandler constructs the item handler. enqueue may be nil when no worker
// is deployed.
func NewHandler(logger *slog.Logger, service *Service, enqueue ReconcileEnqueuer, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), enqueue: enqueue, metrics: metrics}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.list)
	r.Post("/items", h.create)
	r.Patch("/items/{id}", h.update)
	r.Delete("/items/{id}", h.delete)
	r.Post("/items/{id}/sell", h.sell)
	r.Post("/items/{id}/return", h.returnToStock)
}

type itemResponse struct {
	ID            int64      `json:"id"`
	ProductName   string     `json:"product_name"`
	PurchasePrice float64    `json:"purchase_price"`
	SalePrice     float64    `json:"sale_price,omitempty"`
	Quantity      int        `json:"quantity"`
	AcquiredAt    time.Time  `json:"acquired_at"`
	SaleDate      *time.Time `json:"sale_date,omitempty"`
	Status        Status     `json:"status"`
	Condition     Condition  `json:"condition"`
	BatchRef      string     `json:"batch_ref,omitempty"`
}

type createItemRequest struct {
	ProductName   string     `json:"product_name" validate:"required,max=300"`
	PurchasePrice float64    `json:"purchase_price" validate:"gte=0"`
	SalePrice     float64    `json:"sale_price" validate:"gte=0"`
	Quantity      int        `json:"quantity" validate:"required,gte=1"`
	AcquiredAt    *time.Time `json:"acquired_at,omitempty"`
	SaleDate      *time.Time `json:"sale_date,omitempty"`
	Status        string     `json:"status" validate:"omitempty,oneof=in_stock sold"`
	Condition     string     `json:"condition" validate:"omitempty,oneof=new lightly_used used"`
	BatchRef      string     `json:"batch_ref"`
}

type updateItemRequest struct {
	ProductName   *string    `json:"product_name" validate:"omitempty,max=300"`
	PurchasePrice *float64   `json:"purchase_price" validate:"omitempty,gte=0"`
	SalePrice     *float64   `json:"sale_price" validate:"omitempty,gte=0"`
	Quantity      *int       `json:"quantity" validate:"omitempty,gte=1"`
	AcquiredAt    *time.Time `json:"acquired_at"`
	Condition     *string    `json:"condition" validate:"omitempty,oneof=new lightly_used used"`
	BatchRef      *string    `json:"batch_ref"`
}

type sellRequest struct {
	Quantity      int     `json:"quantity" validate:"required,gte=1"`
	UnitSalePrice float64 `json:"unit_sale_price" validate:"gte=0"`
}

type returnRequest struct {
	SalePrice *float64 `json:"sale_price" validate:"omitempty,gte=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list items failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if h.enqueue != nil {
		// Opportunistic backfill of missing batch tags; failure to queue is
		// not a reason to fail the read.
		if err := h.enqueue.EnqueueReconcile(r.Context()); err != nil {
			h.logger.Warn("enqueue reconcile", slog.Any("error", err))
		}
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		ProductName:   req.ProductName,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Quantity:      req.Quantity,
		Status:        Status(req.Status),
		Condition:     Condition(req.Condition),
		BatchRef:      req.BatchRef,
	}
	if req.AcquiredAt != nil {
		input.AcquiredAt = *req.AcquiredAt
	}
	if req.SaleDate != nil {
		input.SaleDate = *req.SaleDate
	}
	item, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	update := ItemUpdate{
		ProductName:   req.ProductName,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Quantity:      req.Quantity,
		AcquiredAt:    req.AcquiredAt,
		BatchRef:      req.BatchRef,
	}
	if req.Condition != nil {
		cond := Condition(*req.Condition)
		update.Condition = &cond
	}
	item, err := h.service.Update(r.Context(), id, update)
	if err != nil {
		h.respondError(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sold, err := h.service.Sell(r.Context(), id, SellInput{Quantity: req.Quantity, UnitSalePrice: req.UnitSalePrice})
	if err != nil {
		h.respondError(w, "sell item", err)
		return
	}
	h.metrics.ItemsSold(sold.Quantity)
	httpx.JSON(w, http.StatusCreated, toItemResponse(sold))
}

func (h *Handler) returnToStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	item, err := h.service.Return(r.Context(), id, ReturnInput{SalePrice: req.SalePrice})
	if err != nil {
		h.respondError(w, "return item", err)
		return
	}
	h.metrics.ItemReturned()
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrUnknownCondition),
		errors.Is(err, ErrNotInStock),
		errors.Is(err, ErrNotSold),
		errors.Is(err, ErrMissingName):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toItemResponse(item Item) itemResponse {
	resp := itemResponse{
		ID:            item.ID,
		ProductName:   item.ProductName,
		PurchasePrice: item.PurchasePrice,
		SalePrice:     item.SalePrice,
		Quantity:      item.Quantity,
		AcquiredAt:    item.AcquiredAt,
		Status:        item.Status,
		Condition:     item.Condition,
		BatchRef:      item.BatchRef,
	}
	if !item.SaleDate.IsZero() {
		saleDate := item.SaleDate
		resp.SaleDate = &saleDate
	}
	return resp
}
