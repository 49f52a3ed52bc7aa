package sampler

import (
	"context"
	"errors"
	"time"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// timeoutMargin is added to the CPU interval to form the default per-sampler
// timeout
const timeoutMargin = 300 * time.Millisecond

// Source is a single sampling routine
type Source[T any] interface {
	Sample(ctx context.Context) (T, error)
}

// Samplers groups the five sampling routines composed by a Collector
type Samplers struct {
	CPU     Source[CPUStats]
	Memory  Source[MemoryStats]
	Disk    Source[DiskStats]
	Network Source[map[string]NetworkStats]
	System  Source[SystemInfo]
}

// Config controls how a Collector runs its samplers
type Config struct {
	// CPUInterval separates the two CPU tick readings
	CPUInterval time.Duration
	// Timeout bounds each sampler. Zero means CPUInterval plus a small margin
	Timeout time.Duration
	// Parallel runs the samplers concurrently
	Parallel bool
}

// Collector composes the samplers into one Snapshot
type Collector struct {
	samplers Samplers
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewCollector wires the default samplers against resolver
func NewCollector(resolver *hostfs.Resolver, cfg Config, logger *zap.Logger) *Collector {
	if cfg.CPUInterval <= 0 {
		cfg.CPUInterval = DefaultCPUInterval
	}
	return NewCollectorWithSamplers(Samplers{
		CPU:     NewCPUSampler(resolver, cfg.CPUInterval),
		Memory:  NewMemorySampler(resolver),
		Disk:    NewDiskSampler(resolver, logger),
		Network: NewNetworkSampler(resolver, logger),
		System:  NewSystemInfoSampler(resolver, logger),
	}, cfg, logger)
}

// NewCollectorWithSamplers builds a Collector from explicit samplers
func NewCollectorWithSamplers(samplers Samplers, cfg Config, logger *zap.Logger) *Collector {
	if cfg.CPUInterval <= 0 {
		cfg.CPUInterval = DefaultCPUInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.CPUInterval + timeoutMargin
	}
	return &Collector{
		samplers: samplers,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Collect runs every sampler and returns the resulting Snapshot, stamped with
// the local time at which collection started. A failing sampler leaves its
// sub-record absent; ErrNoData is returned only when every sub-record is
// absent
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Timestamp: c.now().Local().Truncate(time.Second),
	}

	tasks := []func(){
		func() { snap.CPU = run(ctx, c, "cpu", c.samplers.CPU) },
		func() { snap.Memory = run(ctx, c, "memory", c.samplers.Memory) },
		func() { snap.Disk = run(ctx, c, "disk", c.samplers.Disk) },
		func() {
			if m := run(ctx, c, "network", c.samplers.Network); m != nil {
				snap.Network = *m
			}
		},
		func() { snap.System = run(ctx, c, "system", c.samplers.System) },
	}

	if c.cfg.Parallel {
		var g errgroup.Group
		for _, task := range tasks {
			g.Go(func() error {
				task()
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, task := range tasks {
			task()
		}
	}

	if snap.Empty() {
		return snap, ErrNoData
	}

	observe(snap)
	return snap, nil
}

// run executes one sampler under the per-sampler timeout. It returns nil when
// the sampler is missing or fails
func run[T any](ctx context.Context, c *Collector, name string, src Source[T]) *T {
	if src == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	v, err := src.Sample(ctx)
	samplerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		samplerFailures.WithLabelValues(name).Inc()
		fields := []zap.Field{zap.String("sampler", name), zap.Error(err)}
		if errors.Is(err, ErrPermissionDenied) {
			c.logger.Debug("Sampler skipped", fields...)
		} else {
			c.logger.Warn("Sampler failed", fields...)
		}
		return nil
	}
	return &v
}
