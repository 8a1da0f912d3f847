package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"btcFootprint/internal/app"
	"btcFootprint/internal/domain"
	"btcFootprint/internal/ports"
)

const (
	ServiceName        = "btc-footprint"
	RequestIDHeaderKey = "X-Request-ID"
)

// FootprintService is the part of the application service the HTTP layer calls.
type FootprintService interface {
	DefaultRequest() app.FootprintRequest
	Footprint(ctx context.Context, req app.FootprintRequest) (*domain.Footprint, error)
	OrderBook(ctx context.Context) (*domain.OrderBook, error)
	RelevantOrders(ctx context.Context, chartTF string) (*domain.RelevantOrders, error)
}

// Handler serves the dashboard API.
type Handler struct {
	svc    FootprintService
	logger ports.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc FootprintService, logger ports.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// NewRouter wires the handler, health check, and metrics endpoint behind the
// recovery, request ID, CORS, and access log middleware.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(h.logger))

	r.Get("/health", h.HealthCheck)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", h.GetData)
		r.Get("/orderbook", h.GetOrderBook)
		r.Get("/relevant_orders", h.GetRelevantOrders)
	})

	return r
}
