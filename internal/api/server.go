// Package api exposes the placement engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"harborplan/internal/analysis"
	"harborplan/internal/config"
	"harborplan/internal/metrics"
	"harborplan/internal/opt"
	"harborplan/internal/planner"
	"harborplan/internal/store"
	"harborplan/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Planner  *planner.Planner
	Pub      *webhooks.Publisher
	Analyzer analysis.Analyzer
	Broker   EventBroker

	cfg     *config.Config
	log     zerolog.Logger
	jobs    *jobRegistry
	limiter *clientLimiter
	router  chi.Router

	// background runs live until Close, not until their request ends
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer opens the configured store and broker and builds the server.
func NewServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process event broker")
		} else {
			broker = rb
		}
	}
	return New(cfg, st, broker, logger)
}

// OpenStore selects the store backend and applies migrations when enabled.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var dialect store.Dialect
	switch cfg.DBBackend {
	case config.DatabaseMemory, "":
		return store.NewMemory(), nil
	case config.DatabasePostgres:
		dialect = store.Postgres
	case config.DatabaseSQLite:
		dialect = store.SQLite
	default:
		return nil, fmt.Errorf("unsupported db backend %q", cfg.DBBackend)
	}
	sq, err := store.OpenSQL(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBBackend, err)
	}
	if cfg.DBMigrate {
		if err := sq.Migrate(ctx); err != nil {
			_ = sq.Close()
			return nil, fmt.Errorf("migrate %s store: %w", cfg.DBBackend, err)
		}
	}
	return sq, nil
}

// New wires a server around an already opened store and broker.
func New(cfg *config.Config, st store.Store, broker EventBroker, logger zerolog.Logger) (*Server, error) {
	metrics.RegisterDefault()
	pl, err := planner.New(opt.Default(cfg.RandomSeed), cfg.Planner(), logger.With().Str("component", "planner").Logger())
	if err != nil {
		return nil, err
	}
	if _, err := pl.Registry().Resolve(cfg.Strategies); err != nil {
		return nil, fmt.Errorf("default strategies: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Store:    st,
		Planner:  pl,
		Pub:      webhooks.NewPublisher(st, logger),
		Analyzer: analysis.New(cfg.AnalyzerURL, cfg.AnalyzerTimeout, logger),
		Broker:   broker,
		cfg:      cfg,
		log:      logger.With().Str("component", "api").Logger(),
		jobs:     newJobRegistry(),
		limiter:  newClientLimiter(cfg.RateRPS, cfg.RateBurst),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	pl.SetObserver(s.observe)
	s.router = s.routes()
	return s, nil
}

// observe forwards planner events to job history and the broker.
func (s *Server) observe(evt planner.Event) {
	if s.jobs.record(evt) {
		s.Broker.Publish(evt.RunID, evt)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/debug/info", s.DebugInfo)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/boats", s.ListBoatsHandler)
		r.Post("/boats", s.CreateBoatHandler)
		r.Get("/boats/{id}", s.GetBoatHandler)
		r.Put("/boats/{id}", s.UpdateBoatHandler)
		r.Delete("/boats/{id}", s.DeleteBoatHandler)

		r.Get("/slots", s.ListSlotsHandler)
		r.Post("/slots", s.CreateSlotHandler)
		r.Get("/slots/{id}", s.GetSlotHandler)
		r.Put("/slots/{id}", s.UpdateSlotHandler)
		r.Delete("/slots/{id}", s.DeleteSlotHandler)

		r.Get("/strategies", s.StrategiesHandler)

		r.With(s.limit).Post("/optimize", s.OptimizeHandler)
		r.Get("/optimize/{jobId}", s.JobHandler)
		r.Get("/optimize/{jobId}/events", s.JobEventsHandler)
		r.Get("/runs/ws", s.RunsWSHandler)

		r.Post("/solutions", s.SaveSolutionHandler)
		r.Get("/stays", s.StaysHandler)
		r.Get("/plan-metrics", s.PlanMetricsHandler)

		r.Get("/subscriptions", s.ListSubscriptionsHandler)
		r.Post("/subscriptions", s.CreateSubscriptionHandler)
		r.Delete("/subscriptions/{id}", s.DeleteSubscriptionHandler)

		r.Get("/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
		r.Post("/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)
	})
	return r
}

// accessLog records one structured line and the HTTP metrics per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		dur := time.Since(start)
		code := fmt.Sprint(status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", dur).
			Msg("http request")
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer returns an http.Server bound to the configured address. Write
// timeouts stay off so event streams can run.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.WebhookMaxAttempts, s.log)
}

// Close cancels background runs, waits for them and releases the broker
// and store.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return errors.Join(s.Broker.Close(), s.Store.Close())
}
