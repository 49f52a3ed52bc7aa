// Package api serves collected and persisted metrics over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"github.com/stone-age-io/sysmetrics/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Collector produces a live snapshot
type Collector interface {
	Collect(ctx context.Context) (sampler.Snapshot, error)
}

// Repository persists snapshots and reads back the latest rows
type Repository interface {
	Save(ctx context.Context, snap sampler.Snapshot) error
	Latest(ctx context.Context) (store.LatestMetrics, error)
}

// Config holds HTTP server settings
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	StoreRateLimit  rate.Limit // POST /store requests per second
	StoreRateBurst  int
}

// Server is the HTTP front end
type Server struct {
	cfg          Config
	collector    Collector
	repo         Repository
	logger       *zap.Logger
	storeLimiter *rate.Limiter
	httpServer   *http.Server
	engine       *gin.Engine
}

// New builds a Server and its routes
func New(cfg Config, collector Collector, repo Repository, logger *zap.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.StoreRateLimit <= 0 {
		cfg.StoreRateLimit = rate.Inf
	}
	if cfg.StoreRateBurst <= 0 {
		cfg.StoreRateBurst = 1
	}

	s := &Server{
		cfg:          cfg,
		collector:    collector,
		repo:         repo,
		logger:       logger,
		storeLimiter: rate.NewLimiter(cfg.StoreRateLimit, cfg.StoreRateBurst),
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(s.requestIDMiddleware(), s.recoveryMiddleware(), s.loggingMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleLatest)
	r.GET("/snapshot", s.handleSnapshot)
	r.POST("/store", s.rateLimitMiddleware(), s.handleStore)
	r.GET("/debug/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("address", s.cfg.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
