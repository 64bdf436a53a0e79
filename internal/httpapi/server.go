package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/stockdesk/internal/app"
	"github.com/rickgao/stockdesk/internal/connection"
	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/orderqueue"
	"github.com/rickgao/stockdesk/internal/store"
)

// Desk is the application surface the API drives.
type Desk interface {
	Store() *store.Store
	Quotes() app.QuoteSource
	ConnectionStats() connection.ManagerStats

	SubmitOrder(ctx context.Context, req app.OrderRequest) (app.SubmitResult, error)
	AddToWatchlist(ctx context.Context, symbol string) (bool, error)
	RemoveFromWatchlist(symbol string) (bool, error)
	Resolve(ctx context.Context, conflictID string, action model.ResolveAction) (model.Order, error)
	Drain(ctx context.Context) (orderqueue.Result, error)
	OnResume()
}

var _ Desk = (*app.App)(nil)

// Server serves the HTTP API.
type Server struct {
	desk   Desk
	logger *slog.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*options)

type options struct {
	metrics     http.Handler
	metricsPath string
}

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(o *options) {
		o.metricsPath = path
		o.metrics = h
	}
}

// New creates a Server for desk.
func New(desk Desk, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		desk:   desk,
		logger: logger.With("component", "httpapi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	if o.metrics != nil {
		r.Method(http.MethodGet, o.metricsPath, o.metrics)
	}

	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", s.listQuotes)
		r.Get("/{symbol}", s.getQuote)
		r.Get("/{symbol}/candles", s.getCandles)
	})
	r.Get("/search", s.search)

	r.Route("/watchlist", func(r chi.Router) {
		r.Get("/", s.listWatchlist)
		r.Post("/", s.addWatchlist)
		r.Delete("/{symbol}", s.removeWatchlist)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", s.listOrders)
		r.Post("/", s.submitOrder)
	})

	r.Get("/queue", s.listQueue)
	r.Post("/queue/drain", s.drain)

	r.Get("/conflicts", s.listConflicts)
	r.Post("/conflicts/{id}/resolve", s.resolve)

	r.Post("/lifecycle/resume", s.resume)
	r.Get("/connection", s.connection)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
