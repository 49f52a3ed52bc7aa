package sampler

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Families converts a Snapshot into Prometheus metric families. Absent
// sub-records produce no families
func Families(snap Snapshot) ([]*dto.MetricFamily, error) {
	reg := prometheus.NewRegistry()

	var regErr error
	register := func(c prometheus.Collector) {
		if err := reg.Register(c); err != nil && regErr == nil {
			regErr = err
		}
	}
	gauge := func(name, help string, value float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		g.Set(value)
		register(g)
	}

	if snap.CPU != nil {
		gauge("host_cpu_logical_cores", "Logical processor count", float64(snap.CPU.TotalCores))
		if snap.CPU.PhysicalCores != nil {
			gauge("host_cpu_physical_packages", "Distinct physical processor ids", float64(*snap.CPU.PhysicalCores))
		}
		gauge("host_cpu_usage_percent", "CPU utilization over the sampling interval", snap.CPU.UsagePercent)
	}

	if m := snap.Memory; m != nil {
		gauge("host_memory_total_megabytes", "Total RAM", float64(m.TotalMB))
		gauge("host_memory_used_megabytes", "Used RAM (total minus available)", float64(m.UsedMB))
		gauge("host_memory_available_megabytes", "Available RAM", float64(m.AvailableMB))
		gauge("host_memory_usage_percent", "RAM usage", m.UsagePercent)
		gauge("host_swap_total_megabytes", "Total swap", float64(m.SwapTotalMB))
		gauge("host_swap_used_megabytes", "Used swap", float64(m.SwapUsedMB))
		gauge("host_swap_usage_percent", "Swap usage", m.SwapPercent)
	}

	if d := snap.Disk; d != nil {
		gauge("host_disk_total_gigabytes", "Aggregate disk capacity", d.TotalGB)
		gauge("host_disk_used_gigabytes", "Aggregate used disk space", d.UsedGB)
		gauge("host_disk_free_gigabytes", "Aggregate free disk space", d.FreeGB)
		gauge("host_disk_usage_percent", "Aggregate disk usage", d.PercentUsed)
	}

	if snap.Network != nil {
		counters := []struct {
			name string
			help string
			get  func(NetworkStats) uint64
		}{
			{"host_network_receive_bytes_total", "Bytes received", func(n NetworkStats) uint64 { return n.BytesRecv }},
			{"host_network_transmit_bytes_total", "Bytes sent", func(n NetworkStats) uint64 { return n.BytesSent }},
			{"host_network_receive_packets_total", "Packets received", func(n NetworkStats) uint64 { return n.PacketsRecv }},
			{"host_network_transmit_packets_total", "Packets sent", func(n NetworkStats) uint64 { return n.PacketsSent }},
			{"host_network_receive_errors_total", "Receive errors", func(n NetworkStats) uint64 { return n.ErrIn }},
			{"host_network_transmit_errors_total", "Transmit errors", func(n NetworkStats) uint64 { return n.ErrOut }},
			{"host_network_receive_drop_total", "Inbound drops", func(n NetworkStats) uint64 { return n.DropIn }},
			{"host_network_transmit_drop_total", "Outbound drops", func(n NetworkStats) uint64 { return n.DropOut }},
		}
		for _, c := range counters {
			vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: c.name, Help: c.help}, []string{"interface"})
			for iface, ns := range snap.Network {
				vec.WithLabelValues(iface).Add(float64(c.get(ns)))
			}
			register(vec)
		}
	}

	if s := snap.System; s != nil {
		labels := prometheus.Labels{
			"os":           labelValue(s.OS),
			"hostname":     labelValue(s.Hostname),
			"architecture": labelValue(s.Architecture),
		}
		info := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "host_info",
			Help:        "Host identity",
			ConstLabels: labels,
		})
		info.Set(1)
		register(info)

		if s.UptimeSec != nil {
			gauge("host_uptime_seconds", "Seconds since boot", float64(*s.UptimeSec))
		}
		if s.Users != nil {
			gauge("host_users", "Logged-in user sessions", float64(*s.Users))
		}
		if s.Processes != nil {
			gauge("host_processes", "Visible processes", float64(*s.Processes))
		}
	}

	if regErr != nil {
		return nil, fmt.Errorf("failed to register snapshot metrics: %w", regErr)
	}
	return reg.Gather()
}

// WriteText writes snap in the Prometheus text exposition format
func WriteText(w io.Writer, snap Snapshot) error {
	families, err := Families(snap)
	if err != nil {
		return fmt.Errorf("failed to gather snapshot metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// labelValue dereferences s and replaces invalid UTF-8, since these values
// come straight from host files
func labelValue(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ToValidUTF8(*s, "\uFFFD")
}
