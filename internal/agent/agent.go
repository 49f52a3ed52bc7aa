package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/stone-age-io/sysmetrics/internal/api"
	"github.com/stone-age-io/sysmetrics/internal/config"
	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	natsclient "github.com/stone-age-io/sysmetrics/internal/nats"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"github.com/stone-age-io/sysmetrics/internal/scheduler"
	"github.com/stone-age-io/sysmetrics/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Agent wires the collector, store, scheduler, HTTP API and optional NATS
// publisher into one long-running process
type Agent struct {
	config    *config.Config
	logger    *zap.Logger
	store     *store.Store
	nats      *natsclient.Client // nil when NATS is disabled
	scheduler *scheduler.Scheduler
	server    *api.Server
	version   string
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// New creates a new agent instance
func New(configPath string, version string) (*Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting sysmetrics",
		zap.String("version", version),
		zap.String("host_root", cfg.Host.Root))

	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		config:  cfg,
		logger:  logger,
		version: version,
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := a.build(); err != nil {
		a.closeResources()
		cancel()
		return nil, err
	}
	return a, nil
}

func (a *Agent) build() error {
	cfg := a.config
	logger := a.logger

	resolver := hostfs.New(cfg.Host.Root)
	collector := sampler.NewCollector(resolver, sampler.Config{
		CPUInterval: cfg.Sampling.CPUInterval,
		Timeout:     cfg.Sampling.SamplerTimeout,
		Parallel:    cfg.Sampling.Parallel,
	}, logger)

	logger.Info("Connecting to database...")
	st, err := store.Open(a.ctx, store.Options{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	if cfg.Database.AutoMigrate {
		if err := st.Migrate(a.ctx); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	// Left as an untyped nil interface when NATS is off
	var publisher scheduler.Publisher
	if cfg.NATS.Enabled {
		logger.Info("Connecting to NATS...")
		client, err := natsclient.NewClient(&cfg.NATS, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.nats = client
		publisher = client

		handlers := natsclient.NewCommandHandlers(logger, cfg.NATS.SubjectPrefix, cfg.NATS.HostID,
			collector, a.version, cfg.NATS.CommandTimeout)
		if err := handlers.SubscribeAll(client); err != nil {
			return fmt.Errorf("failed to subscribe to commands: %w", err)
		}
	}

	if cfg.Schedule.Enabled {
		sched, err := scheduler.New(logger, collector, st, publisher, cfg.Schedule.Interval, a.ctx)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		a.scheduler = sched
	}

	gin.SetMode(gin.ReleaseMode)
	a.server = api.New(api.Config{
		Address:         cfg.HTTP.Listen,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		StoreRateLimit:  rate.Limit(cfg.HTTP.StoreRateLimit),
		StoreRateBurst:  cfg.HTTP.StoreRateBurst,
	}, collector, st, logger)

	return nil
}

// Run starts the agent and blocks until a signal arrives, Stop is called or
// the HTTP server fails
func (a *Agent) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	a.logger.Info("Agent running",
		zap.String("listen", a.config.HTTP.Listen),
		zap.Bool("schedule", a.config.Schedule.Enabled),
		zap.Bool("nats", a.config.NATS.Enabled),
		zap.String("version", a.version))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-sigChan:
		a.logger.Info("Received shutdown signal")
	case <-a.ctx.Done():
		a.logger.Info("Context cancelled")
	case err := <-serverErr:
		runErr = err
		if err != nil {
			a.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}

	a.Stop()
	return runErr
}

// Stop gracefully shuts the agent down. Safe to call more than once
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info("Shutting down agent gracefully")
		a.cancel()

		if a.scheduler != nil {
			if err := a.scheduler.Shutdown(); err != nil {
				a.logger.Error("Error shutting down scheduler", zap.Error(err))
			}
		}

		if a.server != nil {
			if err := a.server.Shutdown(context.Background()); err != nil {
				a.logger.Error("Error shutting down HTTP server", zap.Error(err))
			}
		}

		a.closeResources()

		a.logger.Info("Agent shutdown complete")
		_ = a.logger.Sync()
	})
}

func (a *Agent) closeResources() {
	if a.nats != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), a.config.NATS.DrainTimeout)
		if err := a.nats.Drain(drainCtx); err != nil {
			a.logger.Error("Error draining NATS", zap.Error(err))
		}
		cancel()
		a.nats = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Error closing database", zap.Error(err))
		}
		a.store = nil
	}
}

// initLogger creates the logger: JSON to a rotated file plus console output
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
