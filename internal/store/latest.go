package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

// CPURecord is the most recent cpu_metrics row
type CPURecord struct {
	Timestamp string `json:"timestamp"`
	sampler.CPUStats
}

// MemoryRecord is the most recent memory_metrics row
type MemoryRecord struct {
	Timestamp string `json:"timestamp"`
	sampler.MemoryStats
}

// DiskRecord is the most recent disk_metrics row. PercentUsed keeps the
// stored display form, e.g. "42.0%"
type DiskRecord struct {
	Timestamp   string  `json:"timestamp"`
	TotalGB     float64 `json:"total_disk_space_gb"`
	UsedGB      float64 `json:"used_disk_space_gb"`
	FreeGB      float64 `json:"free_disk_space_gb"`
	PercentUsed string  `json:"percent_used"`
}

// NetworkRecord is one interface row from the most recent network sample
type NetworkRecord struct {
	Timestamp string `json:"timestamp"`
	sampler.NetworkStats
}

// SystemRecord is the most recent system_info row
type SystemRecord struct {
	Timestamp string `json:"timestamp"`
	sampler.SystemInfo
}

// LatestMetrics holds the newest row(s) per category. Categories with no
// rows are nil and omitted from JSON
type LatestMetrics struct {
	CPU     *CPURecord               `json:"cpu,omitempty"`
	Memory  *MemoryRecord            `json:"memory,omitempty"`
	Disk    *DiskRecord              `json:"disk,omitempty"`
	Network map[string]NetworkRecord `json:"network,omitempty"`
	System  *SystemRecord            `json:"system_info,omitempty"`
}

// Empty reports whether no category has data
func (l LatestMetrics) Empty() bool {
	return l.CPU == nil && l.Memory == nil && l.Disk == nil && len(l.Network) == 0 && l.System == nil
}

// Latest returns the newest row per category ordered by timestamp. Tables
// that do not exist yet are treated as empty
func (s *Store) Latest(ctx context.Context) (LatestMetrics, error) {
	var out LatestMetrics

	steps := []struct {
		table string
		read  func(context.Context, *LatestMetrics) error
	}{
		{tableCPU, s.latestCPU},
		{tableMemory, s.latestMemory},
		{tableDisk, s.latestDisk},
		{tableNetwork, s.latestNetwork},
		{tableSystem, s.latestSystem},
	}

	for _, step := range steps {
		err := step.read(ctx, &out)
		switch {
		case err == nil, errors.Is(err, sql.ErrNoRows):
		case isMissingTable(err):
			s.logger.Debug("Table missing, treating as empty", zap.String("table", step.table))
		default:
			return LatestMetrics{}, fmt.Errorf("failed to query %s: %w", step.table, err)
		}
	}

	return out, nil
}

func (s *Store) latestCPU(ctx context.Context, out *LatestMetrics) error {
	var (
		rec      CPURecord
		ts       time.Time
		physical sql.Null[int]
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, total_cores, physical_cores, total_cpu_usage FROM cpu_metrics ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&ts, &rec.TotalCores, &physical, &rec.UsagePercent)
	if err != nil {
		return err
	}
	rec.Timestamp = ts.Format(sampler.TimestampLayout)
	rec.PhysicalCores = nullPtr(physical)
	out.CPU = &rec
	return nil
}

func (s *Store) latestMemory(ctx context.Context, out *LatestMetrics) error {
	var (
		rec MemoryRecord
		ts  time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, total_ram_mb, used_ram_mb, available_ram_mb, ram_usage, swap_total_mb, swap_used_mb, swap_usage FROM memory_metrics ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&ts, &rec.TotalMB, &rec.UsedMB, &rec.AvailableMB, &rec.UsagePercent, &rec.SwapTotalMB, &rec.SwapUsedMB, &rec.SwapPercent)
	if err != nil {
		return err
	}
	rec.Timestamp = ts.Format(sampler.TimestampLayout)
	out.Memory = &rec
	return nil
}

func (s *Store) latestDisk(ctx context.Context, out *LatestMetrics) error {
	var (
		rec DiskRecord
		ts  time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, total_disk_space_gb, used_disk_space_gb, free_disk_space_gb, percent_used FROM disk_metrics ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&ts, &rec.TotalGB, &rec.UsedGB, &rec.FreeGB, &rec.PercentUsed)
	if err != nil {
		return err
	}
	rec.Timestamp = ts.Format(sampler.TimestampLayout)
	out.Disk = &rec
	return nil
}

// latestNetwork returns every interface written at the newest timestamp
func (s *Store) latestNetwork(ctx context.Context, out *LatestMetrics) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, interface, bytes_sent, bytes_recv, packets_sent, packets_recv, errin, errout, dropin, dropout FROM network_metrics WHERE timestamp = (SELECT MAX(timestamp) FROM network_metrics) ORDER BY interface`)
	if err != nil {
		return err
	}
	defer rows.Close()

	records := make(map[string]NetworkRecord)
	for rows.Next() {
		var (
			rec   NetworkRecord
			ts    time.Time
			iface string
		)
		if err := rows.Scan(&ts, &iface, &rec.BytesSent, &rec.BytesRecv, &rec.PacketsSent, &rec.PacketsRecv,
			&rec.ErrIn, &rec.ErrOut, &rec.DropIn, &rec.DropOut); err != nil {
			return err
		}
		rec.Timestamp = ts.Format(sampler.TimestampLayout)
		records[iface] = rec
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(records) > 0 {
		out.Network = records
	}
	return nil
}

func (s *Store) latestSystem(ctx context.Context, out *LatestMetrics) error {
	var (
		rec       SystemRecord
		ts        time.Time
		osName    sql.Null[string]
		hostname  sql.Null[string]
		arch      sql.Null[string]
		uptime    sql.Null[uint64]
		users     sql.Null[int]
		processes sql.Null[int]
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT timestamp, os, hostname, architecture, uptime_sec, users, processes FROM system_info ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&ts, &osName, &hostname, &arch, &uptime, &users, &processes)
	if err != nil {
		return err
	}
	rec.Timestamp = ts.Format(sampler.TimestampLayout)
	rec.OS = nullPtr(osName)
	rec.Hostname = nullPtr(hostname)
	rec.Architecture = nullPtr(arch)
	rec.UptimeSec = nullPtr(uptime)
	rec.Users = nullPtr(users)
	rec.Processes = nullPtr(processes)
	out.System = &rec
	return nil
}

func nullPtr[T any](n sql.Null[T]) *T {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}
