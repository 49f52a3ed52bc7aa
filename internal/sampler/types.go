// Package sampler derives structured host metrics from pseudo-filesystem
// sources and OS APIs, and composes them into timestamped snapshots
package sampler

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the second-resolution layout used when a Snapshot is
// serialized for display or storage
const TimestampLayout = "2006-01-02 15:04:05"

// Snapshot is one timestamped set of sub-record samples produced by a single
// Collect call. A nil sub-record means its source could not be read; it is
// never substituted with a zero value
type Snapshot struct {
	Timestamp time.Time
	CPU       *CPUStats
	Memory    *MemoryStats
	Disk      *DiskStats
	Network   map[string]NetworkStats
	System    *SystemInfo
}

// snapshotJSON is the wire form of Snapshot. Absent sub-records encode as null
type snapshotJSON struct {
	Timestamp string                  `json:"timestamp"`
	CPU       *CPUStats               `json:"cpu"`
	Memory    *MemoryStats            `json:"memory"`
	Disk      *DiskStats              `json:"disk"`
	Network   map[string]NetworkStats `json:"network"`
	System    *SystemInfo             `json:"system_info"`
}

// Empty reports whether every sub-record is absent
func (s Snapshot) Empty() bool {
	return s.CPU == nil && s.Memory == nil && s.Disk == nil && s.Network == nil && s.System == nil
}

// FormattedTimestamp returns the timestamp in TimestampLayout
func (s Snapshot) FormattedTimestamp() string {
	return s.Timestamp.Format(TimestampLayout)
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Timestamp: s.FormattedTimestamp(),
		CPU:       s.CPU,
		Memory:    s.Memory,
		Disk:      s.Disk,
		Network:   s.Network,
		System:    s.System,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("invalid snapshot timestamp %q: %w", raw.Timestamp, err)
	}

	*s = Snapshot{
		Timestamp: ts,
		CPU:       raw.CPU,
		Memory:    raw.Memory,
		Disk:      raw.Disk,
		Network:   raw.Network,
		System:    raw.System,
	}
	return nil
}

// CPUStats holds processor counts and utilization
type CPUStats struct {
	TotalCores    int     `json:"total_cores"`
	PhysicalCores *int    `json:"physical_cores"` // nil when the source has no physical id field
	UsagePercent  float64 `json:"total_cpu_usage"`
}

// MemoryStats holds RAM and swap figures in megabytes
type MemoryStats struct {
	TotalMB      uint64  `json:"total_ram_mb"`
	UsedMB       uint64  `json:"used_ram_mb"`
	AvailableMB  uint64  `json:"available_ram_mb"`
	UsagePercent float64 `json:"ram_usage"`
	SwapTotalMB  uint64  `json:"swap_total_mb"`
	SwapUsedMB   uint64  `json:"swap_used_mb"`
	SwapPercent  float64 `json:"swap_usage"`
}

// DiskStats aggregates capacity across every mount point that could be queried
type DiskStats struct {
	TotalGB     float64 `json:"total_disk_space_gb"`
	UsedGB      float64 `json:"used_disk_space_gb"`
	FreeGB      float64 `json:"free_disk_space_gb"`
	PercentUsed float64 `json:"percent_used"`
}

// FormattedPercent renders PercentUsed with one decimal and a "%" suffix
func (d DiskStats) FormattedPercent() string {
	return FormatPercent(d.PercentUsed)
}

// FormatPercent renders p as "12.3%"
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// NetworkStats holds cumulative counters for one interface
type NetworkStats struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	ErrIn       uint64 `json:"errin"`
	ErrOut      uint64 `json:"errout"`
	DropIn      uint64 `json:"dropin"`
	DropOut     uint64 `json:"dropout"`
}

// SystemInfo describes host identity. Every field is independently optional
type SystemInfo struct {
	OS           *string `json:"os"`
	Hostname     *string `json:"hostname"`
	Architecture *string `json:"architecture"`
	UptimeSec    *uint64 `json:"uptime_sec"`
	Users        *int    `json:"users"`
	Processes    *int    `json:"processes"`
}

func (i SystemInfo) empty() bool {
	return i.OS == nil && i.Hostname == nil && i.Architecture == nil &&
		i.UptimeSec == nil && i.Users == nil && i.Processes == nil
}

func ptr[T any](v T) *T {
	return &v
}
