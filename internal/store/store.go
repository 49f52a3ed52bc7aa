// Package store persists snapshots as timestamped rows, one table per
// sub-record category, and reads back the most recent rows
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

// mysqlNoSuchTable is ER_NO_SUCH_TABLE
const mysqlNoSuchTable = 1146

// Options configures the connection pool
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store reads and writes metric rows
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to MySQL using opts.DSN. DATETIME columns are parsed into
// local time regardless of the DSN flags
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.Local

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s/%s: %w", cfg.Addr, cfg.DBName, err)
	}

	logger.Info("Connected to database",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.DBName))

	return New(db, logger), nil
}

// New wraps an existing handle
func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates any missing tables
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.logger.Debug("Schema up to date", zap.Int("tables", len(schema)))
	return nil
}

// Save writes one row per present sub-record, and one row per network
// interface, in a single transaction. Absent sub-records are not written
func (s *Store) Save(ctx context.Context, snap sampler.Snapshot) (err error) {
	if snap.Empty() {
		return sampler.ErrNoData
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Rollback failed", zap.Error(rbErr))
			}
		}
	}()

	ts := snap.Timestamp

	if c := snap.CPU; c != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO cpu_metrics (timestamp, total_cores, physical_cores, total_cpu_usage) VALUES (?, ?, ?, ?)`,
			ts, c.TotalCores, c.PhysicalCores, c.UsagePercent); err != nil {
			return fmt.Errorf("failed to insert %s: %w", tableCPU, err)
		}
	}

	if m := snap.Memory; m != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO memory_metrics (timestamp, total_ram_mb, used_ram_mb, available_ram_mb, ram_usage, swap_total_mb, swap_used_mb, swap_usage) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ts, m.TotalMB, m.UsedMB, m.AvailableMB, m.UsagePercent, m.SwapTotalMB, m.SwapUsedMB, m.SwapPercent); err != nil {
			return fmt.Errorf("failed to insert %s: %w", tableMemory, err)
		}
	}

	if d := snap.Disk; d != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO disk_metrics (timestamp, total_disk_space_gb, used_disk_space_gb, free_disk_space_gb, percent_used) VALUES (?, ?, ?, ?, ?)`,
			ts, d.TotalGB, d.UsedGB, d.FreeGB, d.FormattedPercent()); err != nil {
			return fmt.Errorf("failed to insert %s: %w", tableDisk, err)
		}
	}

	ifaces := make([]string, 0, len(snap.Network))
	for name := range snap.Network {
		ifaces = append(ifaces, name)
	}
	sort.Strings(ifaces)
	for _, name := range ifaces {
		n := snap.Network[name]
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO network_metrics (timestamp, interface, bytes_sent, bytes_recv, packets_sent, packets_recv, errin, errout, dropin, dropout) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ts, name, n.BytesSent, n.BytesRecv, n.PacketsSent, n.PacketsRecv, n.ErrIn, n.ErrOut, n.DropIn, n.DropOut); err != nil {
			return fmt.Errorf("failed to insert %s for %s: %w", tableNetwork, name, err)
		}
	}

	if i := snap.System; i != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO system_info (timestamp, os, hostname, architecture, uptime_sec, users, processes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ts, i.OS, i.Hostname, i.Architecture, i.UptimeSec, i.Users, i.Processes); err != nil {
			return fmt.Errorf("failed to insert %s: %w", tableSystem, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug("Snapshot stored",
		zap.String("timestamp", snap.FormattedTimestamp()),
		zap.Int("interfaces", len(ifaces)))
	return nil
}

// isMissingTable reports whether err means the table has not been created
func isMissingTable(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlNoSuchTable
}
