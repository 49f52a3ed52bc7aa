package sampler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"go.uber.org/zap"
)

type countFunc func(ctx context.Context) (int, error)

// SystemInfoSampler reads host identity. Each field comes from its own
// source and a missing source only leaves that field absent
type SystemInfoSampler struct {
	resolver  *hostfs.Resolver
	users     countFunc
	processes countFunc
	logger    *zap.Logger
}

func NewSystemInfoSampler(r *hostfs.Resolver, logger *zap.Logger) *SystemInfoSampler {
	s := &SystemInfoSampler{
		resolver: r,
		logger:   logger,
	}
	s.users = s.countUsers
	s.processes = s.countProcesses
	return s
}

// Sample returns an error only when no field could be populated
func (s *SystemInfoSampler) Sample(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo

	if v, err := s.osName(); err == nil {
		info.OS = &v
	} else {
		s.logger.Debug("OS name unavailable", zap.Error(err))
	}

	if v, err := s.hostname(); err == nil {
		info.Hostname = &v
	} else {
		s.logger.Debug("Hostname unavailable", zap.Error(err))
	}

	if v, err := s.architecture(); err == nil {
		info.Architecture = &v
	} else {
		s.logger.Debug("Architecture unavailable", zap.Error(err))
	}

	if v, err := s.uptime(); err == nil {
		info.UptimeSec = &v
	} else {
		s.logger.Debug("Uptime unavailable", zap.Error(err))
	}

	if v, err := s.users(ctx); err == nil {
		info.Users = &v
	} else {
		s.logger.Debug("User count unavailable", zap.Error(err))
	}

	if v, err := s.processes(ctx); err == nil {
		info.Processes = &v
	} else {
		s.logger.Debug("Process count unavailable", zap.Error(err))
	}

	if info.empty() {
		return SystemInfo{}, fmt.Errorf("system info: %w", ErrSourceUnavailable)
	}
	return info, nil
}

// osName returns the first PRETTY_NAME value, unquoted
func (s *SystemInfoSampler) osName() (string, error) {
	f, err := openSource(s.resolver, hostfs.OSRelease)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "PRETTY_NAME=") {
			continue
		}
		_, value, _ := strings.Cut(line, "=")
		value = strings.Trim(value, `"'`)
		if value == "" {
			break
		}
		return value, nil
	}
	return "", fmt.Errorf("os-release: %w: PRETTY_NAME missing", ErrParseFailure)
}

func (s *SystemInfoSampler) hostname() (string, error) {
	data, err := readSource(s.resolver, hostfs.Hostname)
	if err != nil {
		return "", err
	}

	first, _, _ := bytes.Cut(data, []byte("\n"))
	name := strings.TrimSpace(string(first))
	if name == "" {
		return "", fmt.Errorf("hostname: %w: empty", ErrParseFailure)
	}
	return name, nil
}

// architecture is the last whitespace-delimited token of the kernel version
// string
func (s *SystemInfoSampler) architecture() (string, error) {
	data, err := readSource(s.resolver, hostfs.Version)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("version: %w: empty", ErrParseFailure)
	}
	return fields[len(fields)-1], nil
}

// uptime truncates the first value of the uptime source to whole seconds
func (s *SystemInfoSampler) uptime() (uint64, error) {
	data, err := readSource(s.resolver, hostfs.Uptime)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("uptime: %w: empty", ErrParseFailure)
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("uptime: %w: %q", ErrParseFailure, fields[0])
	}
	return uint64(secs), nil
}

func (s *SystemInfoSampler) countUsers(ctx context.Context) (int, error) {
	users, err := host.UsersWithContext(s.resolver.WithContext(ctx))
	if err != nil {
		return 0, classify("users", err)
	}
	return len(users), nil
}

func (s *SystemInfoSampler) countProcesses(ctx context.Context) (int, error) {
	pids, err := process.PidsWithContext(s.resolver.WithContext(ctx))
	if err != nil {
		return 0, classify("processes", err)
	}
	// A host always has at least one process; none means the proc root is
	// not a procfs
	if len(pids) == 0 {
		return 0, fmt.Errorf("processes: %w: no pids listed", ErrSourceUnavailable)
	}
	return len(pids), nil
}
