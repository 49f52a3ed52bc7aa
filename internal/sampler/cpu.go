package sampler

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stone-age-io/sysmetrics/internal/utils"
)

// DefaultCPUInterval separates the two tick readings used for utilization
const DefaultCPUInterval = 200 * time.Millisecond

// timesFunc returns the aggregate cumulative CPU times
type timesFunc func(ctx context.Context) (cpu.TimesStat, error)

// CPUSampler reports core counts from the processor descriptor table and
// utilization averaged over a short blocking interval.
//
// Utilization is computed from two readings of the cumulative tick counters
// taken Interval apart, so every call blocks for roughly Interval and returns
// a meaningful value without relying on state from a previous call
type CPUSampler struct {
	resolver *hostfs.Resolver
	interval time.Duration
	times    timesFunc
}

// NewCPUSampler creates a CPUSampler. A non-positive interval selects
// DefaultCPUInterval
func NewCPUSampler(r *hostfs.Resolver, interval time.Duration) *CPUSampler {
	if interval <= 0 {
		interval = DefaultCPUInterval
	}
	s := &CPUSampler{
		resolver: r,
		interval: interval,
	}
	s.times = s.readTimes
	return s
}

func (s *CPUSampler) Sample(ctx context.Context) (CPUStats, error) {
	total, physical, err := s.cores()
	if err != nil {
		return CPUStats{}, err
	}

	usage, err := s.usage(ctx)
	if err != nil {
		return CPUStats{}, err
	}

	return CPUStats{
		TotalCores:    total,
		PhysicalCores: physical,
		UsagePercent:  usage,
	}, nil
}

// cores counts "processor" entries and distinct "physical id" values
func (s *CPUSampler) cores() (int, *int, error) {
	f, err := openSource(s.resolver, hostfs.CPUInfo)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	total := 0
	physicalIDs := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "processor":
			total++
		case "physical id":
			physicalIDs[strings.TrimSpace(value)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, fmt.Errorf("cpuinfo: %w: %v", ErrParseFailure, err)
	}

	if total == 0 {
		return 0, nil, fmt.Errorf("cpuinfo: %w: no processor entries", ErrParseFailure)
	}

	var physical *int
	if len(physicalIDs) > 0 {
		physical = ptr(len(physicalIDs))
	}
	return total, physical, nil
}

func (s *CPUSampler) usage(ctx context.Context) (float64, error) {
	first, err := s.times(ctx)
	if err != nil {
		return 0, fmt.Errorf("cpu times: %w", err)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	second, err := s.times(ctx)
	if err != nil {
		return 0, fmt.Errorf("cpu times: %w", err)
	}

	return busyPercent(first, second), nil
}

func (s *CPUSampler) readTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(s.resolver.WithContext(ctx), false)
	if err != nil {
		return cpu.TimesStat{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, fmt.Errorf("%w: no CPU times returned", ErrSourceUnavailable)
	}
	return times[0], nil
}

// busyPercent returns the share of non-idle ticks between two readings
func busyPercent(prev, cur cpu.TimesStat) float64 {
	totalDelta := totalTicks(cur) - totalTicks(prev)
	idleDelta := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)

	if totalDelta <= 0 {
		return 0
	}

	pct := (totalDelta - idleDelta) / totalDelta * 100
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return utils.Round(pct)
}

func totalTicks(t cpu.TimesStat) float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
}
