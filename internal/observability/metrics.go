// Package observability exposes Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application metrics behind a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	itemsSold           prometheus.Counter
	itemsReturned       prometheus.Counter
	batchesMaterialized prometheus.Counter
	itemsReconciled     prometheus.Counter
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocktrail_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocktrail_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	itemsSold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocktrail_items_sold_units_total",
		Help: "Units sold through lifecycle transitions.",
	})
	itemsReturned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocktrail_items_returned_total",
		Help: "Sold records returned to stock.",
	})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocktrail_batches_materialized_total",
		Help: "Batches sent to stock.",
	})
	reconciled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocktrail_items_reconciled_total",
		Help: "Items tagged by the batch reconciliation pass.",
	})
	registry.MustRegister(requests, duration, itemsSold, itemsReturned, batches, reconciled)
	return &Metrics{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:       requests,
		requestDuration:     duration,
		itemsSold:           itemsSold,
		itemsReturned:       itemsReturned,
		batchesMaterialized: batches,
		itemsReconciled:     reconciled,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ItemsSold adds sold units to the counter.
func (m *Metrics) ItemsSold(units int) {
	if m == nil {
		return
	}
	m.itemsSold.Add(float64(units))
}

// ItemReturned counts a return-to-stock transition.
func (m *Metrics) ItemReturned() {
	if m == nil {
		return
	}
	m.itemsReturned.Inc()
}

// BatchMaterialized counts a batch sent to stock.
func (m *Metrics) BatchMaterialized() {
	if m == nil {
		return
	}
	m.batchesMaterialized.Inc()
}

// ItemsReconciled adds newly tagged items to the counter.
func (m *Metrics) ItemsReconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsReconciled.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
