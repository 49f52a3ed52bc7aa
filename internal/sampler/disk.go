package sampler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stone-age-io/sysmetrics/internal/utils"
	"go.uber.org/zap"
)

// fsUsage is the capacity of one filesystem in bytes
type fsUsage struct {
	Total uint64
	Free  uint64
}

type statfsFunc func(path string) (fsUsage, error)

// skipFsTypes are pseudo filesystems that either error on statfs or would
// double-count the backing device
var skipFsTypes = map[string]bool{
	"autofs":      true,
	"binfmt_misc": true,
	"bpf":         true,
	"cgroup":      true,
	"cgroup2":     true,
	"configfs":    true,
	"debugfs":     true,
	"devfs":       true,
	"devpts":      true,
	"devtmpfs":    true,
	"fusectl":     true,
	"hugetlbfs":   true,
	"mqueue":      true,
	"nsfs":        true,
	"overlay":     true,
	"proc":        true,
	"pstore":      true,
	"rpc_pipefs":  true,
	"securityfs":  true,
	"squashfs":    true,
	"sysfs":       true,
	"tmpfs":       true,
	"tracefs":     true,
}

// mountEntry is one parsed line of the mount table
type mountEntry struct {
	Device     string
	Mountpoint string
	FsType     string
}

// DiskSampler aggregates capacity across the mount table. Mount points that
// cannot be queried are skipped, never reported as a sampler failure
type DiskSampler struct {
	resolver *hostfs.Resolver
	statfs   statfsFunc
	logger   *zap.Logger
}

func NewDiskSampler(r *hostfs.Resolver, logger *zap.Logger) *DiskSampler {
	return &DiskSampler{
		resolver: r,
		statfs:   statfs,
		logger:   logger,
	}
}

func (s *DiskSampler) Sample(ctx context.Context) (DiskStats, error) {
	path, found := s.resolver.Resolve(hostfs.Mounts)
	if !found {
		return DiskStats{}, fmt.Errorf("%s: %w", hostfs.Mounts, ErrSourceUnavailable)
	}
	mounts, err := readMounts(path)
	if err != nil {
		return DiskStats{}, err
	}

	// Mount points listed in the host's table only exist under the prefix
	prefix := ""
	if s.resolver.InHost(path) {
		prefix = s.resolver.HostRoot()
	}

	var total, free uint64
	seenMount := make(map[string]bool)
	seenDevice := make(map[string]bool)

	for _, m := range mounts {
		if err := ctx.Err(); err != nil {
			return DiskStats{}, err
		}
		if skipFsTypes[m.FsType] || seenMount[m.Mountpoint] {
			continue
		}
		if strings.HasPrefix(m.Device, "/dev/") && seenDevice[m.Device] {
			continue
		}

		target := m.Mountpoint
		if prefix != "" {
			target = filepath.Join(prefix, m.Mountpoint)
		}

		usage, err := s.statfs(target)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
			s.logger.Debug("Skipping mount point",
				zap.String("mountpoint", m.Mountpoint),
				zap.String("fstype", m.FsType),
				zap.Error(err))
			continue
		}
		if usage.Free > usage.Total {
			usage.Free = usage.Total
		}

		seenMount[m.Mountpoint] = true
		if strings.HasPrefix(m.Device, "/dev/") {
			seenDevice[m.Device] = true
		}
		total += usage.Total
		free += usage.Free
	}

	used := total - free
	return DiskStats{
		TotalGB:     utils.BytesToGB(total),
		UsedGB:      utils.BytesToGB(used),
		FreeGB:      utils.BytesToGB(free),
		PercentUsed: utils.Percent(used, total),
	}, nil
}

func readMounts(path string) ([]mountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(hostfs.Mounts, err)
	}
	defer f.Close()

	var mounts []mountEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts = append(mounts, mountEntry{
			Device:     unescapeMount(fields[0]),
			Mountpoint: unescapeMount(fields[1]),
			FsType:     fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mounts: %w: %v", ErrParseFailure, err)
	}
	return mounts, nil
}

// unescapeMount decodes the octal escapes (\040 for space) used in the
// mount table
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
