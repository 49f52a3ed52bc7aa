package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

var scheduledRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sysmetrics_scheduled_runs_total",
		Help: "Scheduled collect-and-store runs by result",
	},
	[]string{"result"},
)

// Collector produces a snapshot
type Collector interface {
	Collect(ctx context.Context) (sampler.Snapshot, error)
}

// Saver persists a snapshot
type Saver interface {
	Save(ctx context.Context, snap sampler.Snapshot) error
}

// Publisher forwards a stored snapshot elsewhere. Optional
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap sampler.Snapshot) error
}

// Scheduler periodically collects a snapshot, stores it and optionally
// publishes it
type Scheduler struct {
	cron      gocron.Scheduler
	collector Collector
	saver     Saver
	publisher Publisher
	logger    *zap.Logger
	interval  time.Duration
	ctx       context.Context
}

// New creates a scheduler running every interval. publisher may be nil
func New(logger *zap.Logger, collector Collector, saver Saver, publisher Publisher, interval time.Duration, ctx context.Context) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule interval must be positive, got %s", interval)
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLogger(zapLogger{logger.Sugar()}),
		gocron.WithLocation(time.Local),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		cron:      cron,
		collector: collector,
		saver:     saver,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		ctx:       ctx,
	}

	// Singleton mode so a slow database never stacks runs
	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.runScheduled),
		gocron.WithName("collect-and-store"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("failed to schedule collection job: %w", err)
	}

	return s, nil
}

// Start begins running jobs
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	s.cron.Start()
}

// Shutdown stops the scheduler and waits for a running job to finish
func (s *Scheduler) Shutdown() error {
	s.logger.Info("Stopping scheduler")
	return s.cron.Shutdown()
}

func (s *Scheduler) runScheduled() {
	if err := s.RunOnce(s.ctx); err != nil {
		scheduledRuns.WithLabelValues("failure").Inc()
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("Scheduled collection failed", zap.Error(err))
		return
	}
	scheduledRuns.WithLabelValues("success").Inc()
}

// RunOnce collects, stores and publishes one snapshot. A publish failure is
// logged but does not fail the run, since the snapshot is already stored
func (s *Scheduler) RunOnce(ctx context.Context) error {
	snap, err := s.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	if err := s.saver.Save(ctx, snap); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
			s.logger.Warn("Failed to publish snapshot",
				zap.String("timestamp", snap.FormattedTimestamp()),
				zap.Error(err))
		}
	}

	s.logger.Debug("Scheduled snapshot stored", zap.String("timestamp", snap.FormattedTimestamp()))
	return nil
}

// zapLogger adapts zap to gocron.Logger
type zapLogger struct {
	l *zap.SugaredLogger
}

func (z zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }
