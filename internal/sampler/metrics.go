package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sysmetrics_sampler_duration_seconds",
			Help:    "Time spent in each sampler",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sampler"},
	)

	samplerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sysmetrics_sampler_failures_total",
			Help: "Samplers that produced no sub-record",
		},
		[]string{"sampler"},
	)

	hostCPUUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysmetrics_host_cpu_usage_percent",
			Help: "CPU utilization from the most recent snapshot",
		},
	)

	hostMemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysmetrics_host_memory_usage_percent",
			Help: "RAM usage from the most recent snapshot",
		},
	)

	hostDiskUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sysmetrics_host_disk_usage_percent",
			Help: "Aggregate disk usage from the most recent snapshot",
		},
	)
)

// observe publishes the host gauges for the sub-records present in snap
func observe(snap Snapshot) {
	if snap.CPU != nil {
		hostCPUUsage.Set(snap.CPU.UsagePercent)
	}
	if snap.Memory != nil {
		hostMemoryUsage.Set(snap.Memory.UsagePercent)
	}
	if snap.Disk != nil {
		hostDiskUsage.Set(snap.Disk.PercentUsed)
	}
}
