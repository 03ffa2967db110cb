// Package api serves point assessments over HTTP for the map UI.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/store"
)

// MaxBatchPoints caps the points accepted by POST /api/sample.
const MaxBatchPoints = 500

// Evaluator is the engine surface the API needs; *assess.Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, c geo.Coordinate) (*assess.Outcome, error)
	EvaluateMany(ctx context.Context, coords []geo.Coordinate, concurrency int) ([]assess.Result, error)
	Layers() []assess.LayerInfo
}

// Config configures the HTTP server.
type Config struct {
	Port           int
	RateLimit      float64 // requests per second per client; 0 disables
	Burst          int
	AllowedOrigins []string
	Concurrency    int
	// Gatherer backs /metrics; the default registry when nil.
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
}

// Server exposes the assessment API plus health and metrics endpoints.
type Server struct {
	httpServer *http.Server
	engine     Evaluator
	recorder   *store.Recorder
	cfg        Config
	log        *zap.Logger
}

// NewServer builds the router. recorder may be nil when history is disabled.
func NewServer(cfg Config, engine Evaluator, recorder *store.Recorder) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		engine:   engine,
		recorder: recorder,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "api")),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		if s.cfg.RateLimit > 0 {
			api.Use(newClientLimiter(s.cfg.RateLimit, s.cfg.Burst, s.cfg.Clock).middleware)
		}
		api.Get("/sample", s.handleSample)
		api.Post("/sample", s.handleSampleBatch)
		api.Get("/sample.geojson", s.handleSampleGeoJSON)
		api.Get("/layers", s.handleLayers)
		api.Get("/history", s.handleHistory)
		api.Get("/history/{id}", s.handleHistoryItem)
	})
	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.log.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
